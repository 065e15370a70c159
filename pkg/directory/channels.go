package directory

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/store"
)

var patchable = map[string]bool{"live_input": true, "title": true, "thumbnail": true}

func (d *Directory) listChannels(w http.ResponseWriter, r *http.Request) {
	liveOnly := r.URL.Query().Get("live") != ""
	channels, err := d.channels(r.Context(), liveOnly)
	if err != nil {
		d.internal(w, err)
		return
	}
	writeJson(w, http.StatusOK, api.Channels{Channels: channels})
}

func (d *Directory) channels(ctx context.Context, liveOnly bool) ([]api.Channel, error) {
	keys, err := d.store.List(ctx, channelKey)
	if err != nil {
		return nil, err
	}
	out := make([]api.Channel, 0, len(keys))
	for _, k := range keys {
		var c api.Channel
		if err = d.load(ctx, k, &c); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if liveOnly && c.LiveInput == nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (d *Directory) createChannel(w http.ResponseWriter, r *http.Request) {
	var c api.Channel
	if err := readJson(r, &c); err != nil {
		Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	c.LiveInput = nil
	created, err := d.addChannel(r.Context(), c)
	if err != nil {
		if errors.Is(err, errBadId) {
			Fail(w, http.StatusBadRequest, "Invalid id")
			return
		}
		d.internal(w, err)
		return
	}
	if !created {
		Fail(w, http.StatusConflict, "Channel already exists")
		return
	}
	writeJson(w, http.StatusOK, api.NewChannel{Id: c.Id, Title: c.Title, Thumbnail: c.Thumbnail})
}

var errBadId = errors.New("bad channel id")

// addChannel stores the channel unless one with the same id exists.
func (d *Directory) addChannel(ctx context.Context, c api.Channel) (bool, error) {
	if c.Id == "" {
		return false, errBadId
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.store.Get(ctx, channelKey+c.Id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	return true, d.save(ctx, channelKey+c.Id, c)
}

func (d *Directory) putChannel(w http.ResponseWriter, r *http.Request) {
	var c api.Channel
	if err := readJson(r, &c); err != nil {
		Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if c.Id == "" {
		Fail(w, http.StatusBadRequest, "Invalid id")
		return
	}
	d.mu.Lock()
	err := d.save(r.Context(), channelKey+c.Id, c)
	d.mu.Unlock()
	if err != nil {
		d.internal(w, err)
		return
	}
	writeJson(w, http.StatusOK, c)
}

func (d *Directory) getChannel(w http.ResponseWriter, r *http.Request) {
	var c api.Channel
	if err := d.load(r.Context(), channelKey+r.PathValue("id"), &c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Fail(w, http.StatusNotFound, "Channel not found")
			return
		}
		d.internal(w, err)
		return
	}
	writeJson(w, http.StatusOK, c)
}

func (d *Directory) patchChannel(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := readJson(r, &body); err != nil {
		Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	for k := range body {
		if !patchable[k] {
			Fail(w, http.StatusBadRequest, "Invalid key")
			return
		}
	}

	ctx := r.Context()
	key := channelKey + r.PathValue("id")
	d.mu.Lock()
	defer d.mu.Unlock()

	var c api.Channel
	if err := d.load(ctx, key, &c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Fail(w, http.StatusNotFound, "Channel not found")
			return
		}
		d.internal(w, err)
		return
	}
	if err := applyPatch(&c, body); err != nil {
		Fail(w, http.StatusBadRequest, "Invalid value")
		return
	}
	if err := d.save(ctx, key, c); err != nil {
		d.internal(w, err)
		return
	}
	writeJson(w, http.StatusOK, body)
}

func applyPatch(c *api.Channel, body map[string]json.RawMessage) error {
	for k, v := range body {
		var err error
		switch k {
		case "live_input":
			err = json.Unmarshal(v, &c.LiveInput)
		case "title":
			err = json.Unmarshal(v, &c.Title)
		case "thumbnail":
			err = json.Unmarshal(v, &c.Thumbnail)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Directory) linkInput(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := channelKey + r.PathValue("id")
	d.mu.Lock()
	defer d.mu.Unlock()

	var c api.Channel
	if err := d.load(ctx, key, &c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Fail(w, http.StatusNotFound, "Channel not found")
			return
		}
		d.internal(w, err)
		return
	}
	if c.LiveInput != nil {
		Fail(w, http.StatusConflict, "Live input already exists")
		return
	}
	input, err := d.newInput(ctx, nil, r.Header.Get("Origin"))
	if err != nil {
		d.log.Error().Err(err).Msg("live input")
		Fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.LiveInput = &input.Uid
	if err = d.save(ctx, key, c); err != nil {
		d.internal(w, err)
		return
	}
	writeJson(w, http.StatusOK, api.Ok(api.ChannelLiveInput{Id: c.Id, LiveInput: c.LiveInput}))
}

func (d *Directory) unlinkInput(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := channelKey + r.PathValue("id")
	d.mu.Lock()
	defer d.mu.Unlock()

	var c api.Channel
	if err := d.load(ctx, key, &c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Fail(w, http.StatusNotFound, "Channel not found")
			return
		}
		d.internal(w, err)
		return
	}
	if c.LiveInput == nil {
		Fail(w, http.StatusNotFound, "Live input not found")
		return
	}
	if err := d.removeInput(ctx, *c.LiveInput); err != nil && !errors.Is(err, store.ErrNotFound) {
		d.log.Error().Err(err).Msg("live input")
		Fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.LiveInput = nil
	if err := d.save(ctx, key, c); err != nil {
		d.internal(w, err)
		return
	}
	writeJson(w, http.StatusOK, api.Ok(api.ChannelLiveInput{Id: c.Id}))
}

// EnsureChannel creates an empty channel with the id if there is none.
func (d *Directory) EnsureChannel(ctx context.Context, id string) (bool, error) {
	return d.addChannel(ctx, api.Channel{Id: id})
}
