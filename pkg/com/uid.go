package com

import "github.com/rs/xid"

// Uid is a sortable globally unique id used for tunnel calls and sockets.
type Uid struct {
	xid.ID
}

func NewUid() Uid { return Uid{xid.New()} }

func (u Uid) Short() string { return u.String()[:3] + "." + u.String()[len(u.String())-3:] }
