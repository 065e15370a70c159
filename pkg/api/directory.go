package api

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/goccy/go-json"
)

type (
	Channel struct {
		Id        string  `json:"id"`
		LiveInput *string `json:"live_input"`
		Title     string  `json:"title"`
		Thumbnail string  `json:"thumbnail"`
	}
	// NewChannel is the reply to a channel creation.
	NewChannel struct {
		Id        string `json:"id"`
		Live      bool   `json:"live"`
		Title     string `json:"title"`
		Thumbnail string `json:"thumbnail"`
	}
	Channels struct {
		Channels []Channel `json:"channels"`
	}
	ChannelLiveInput struct {
		Id        string  `json:"id"`
		LiveInput *string `json:"live_input"`
	}

	LiveInput struct {
		Uid            string          `json:"uid"`
		Created        string          `json:"created"`
		Meta           json.RawMessage `json:"meta"`
		WebRTC         *Link           `json:"webRTC,omitempty"`
		WebRTCPlayback *Link           `json:"webRTCPlayback,omitempty"`
	}
	Link struct {
		Url string `json:"url"`
	}

	// Result is the success envelope of the live input API.
	Result[T any] struct {
		Success bool `json:"success"`
		Result  T    `json:"result"`
	}

	// Failure is the common error envelope.
	Failure struct {
		Success  bool             `json:"success"`
		Result   any              `json:"result"`
		Messages []FailureMessage `json:"messages"`
	}
	FailureMessage struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)

func Ok[T any](v T) Result[T] { return Result[T]{Success: true, Result: v} }

func Fail(code int, message string) Failure {
	return Failure{Messages: []FailureMessage{{Code: code, Message: message}}}
}

// FailureText extracts the first message of an error envelope.
func FailureText(data []byte) (string, bool) {
	f, err := UnwrapChecked[Failure](data)
	if err != nil || len(f.Messages) == 0 {
		return "", false
	}
	return f.Messages[0].Message, true
}

// LiveSecret is the publish path secret of a live input.
func LiveSecret(uid, token string) string {
	sum := sha256.Sum256([]byte(uid + token))
	return hex.EncodeToString(sum[:])
}
