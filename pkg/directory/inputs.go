package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid"
	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/store"
)

// the format of JS Date.toISOString
const createdLayout = "2006-01-02T15:04:05.000Z"

func (d *Directory) listInputs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keys, err := d.store.List(ctx, inputKey)
	if err != nil {
		d.internal(w, err)
		return
	}
	inputs := make([]api.LiveInput, 0, len(keys))
	for _, k := range keys {
		var in api.LiveInput
		if err = d.load(ctx, k, &in); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			d.internal(w, err)
			return
		}
		inputs = append(inputs, in)
	}
	writeJson(w, http.StatusOK, api.Ok(inputs))
}

func (d *Directory) createInput(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Meta json.RawMessage `json:"meta"`
	}
	// a missing or broken body means no meta
	_ = readJson(r, &body)

	d.mu.Lock()
	in, err := d.newInput(r.Context(), body.Meta, r.Header.Get("Origin"))
	d.mu.Unlock()
	if err != nil {
		d.internal(w, err)
		return
	}
	writeJson(w, http.StatusOK, api.Ok(in))
}

func (d *Directory) getInput(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	var in api.LiveInput
	if err := d.load(r.Context(), inputKey+uid, &in); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Fail(w, http.StatusNotFound, fmt.Sprintf("Live input %v not found", uid))
			return
		}
		d.internal(w, err)
		return
	}
	d.links(&in, r.Header.Get("Origin"))
	writeJson(w, http.StatusOK, api.Ok(in))
}

func (d *Directory) deleteInput(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	d.mu.Lock()
	err := d.store.Delete(r.Context(), inputKey+uid)
	d.mu.Unlock()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Fail(w, http.StatusNotFound, fmt.Sprintf("Live input %v not found", uid))
			return
		}
		d.internal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// newInput makes a live input either here or at the remote service.
func (d *Directory) newInput(ctx context.Context, meta json.RawMessage, origin string) (*api.LiveInput, error) {
	if d.remote != "" {
		return d.remoteInput(ctx)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(meta)) == 0 {
		meta = json.RawMessage("null")
	}
	in := api.LiveInput{Uid: id.String(), Created: d.now().UTC().Format(createdLayout), Meta: meta}
	if err = d.save(ctx, inputKey+in.Uid, in); err != nil {
		return nil, err
	}
	d.links(&in, origin)
	d.log.Info().Str("uid", in.Uid).Msg("new live input")
	return &in, nil
}

func (d *Directory) removeInput(ctx context.Context, uid string) error {
	if d.remote != "" {
		return d.remoteDelete(ctx, uid)
	}
	return d.store.Delete(ctx, inputKey+uid)
}

// links fills the publish and playback urls of the input.
func (d *Directory) links(in *api.LiveInput, origin string) {
	in.WebRTC = &api.Link{Url: origin + "/api/webrtc/live/" + api.LiveSecret(in.Uid, d.token) + "/" + in.Uid}
	in.WebRTCPlayback = &api.Link{Url: origin + "/api/webrtc/play/" + in.Uid}
}

func (d *Directory) remoteUrl(uid string) string {
	if uid == "" {
		return d.remote
	}
	return strings.TrimSuffix(d.remote, "/") + "/" + uid
}

func (d *Directory) remoteInput(ctx context.Context) (*api.LiveInput, error) {
	data, err := d.remoteCall(ctx, http.MethodPost, "")
	if err != nil {
		return nil, err
	}
	res, err := api.UnwrapChecked[api.Result[api.LiveInput]](data)
	if err != nil {
		return nil, err
	}
	return &res.Result, nil
}

func (d *Directory) remoteDelete(ctx context.Context, uid string) error {
	_, err := d.remoteCall(ctx, http.MethodDelete, uid)
	return err
}

func (d *Directory) remoteCall(ctx context.Context, method, uid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, d.remoteUrl(uid), nil)
	if err != nil {
		return nil, err
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, store.ErrNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if msg, ok := api.FailureText(data); ok {
			return nil, errors.New(msg)
		}
		return nil, errors.New(strings.TrimSpace(string(data)))
	}
	return data, nil
}

// proxy sends the live input call to the remote service as is.
func (d *Directory) proxy(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, d.remoteUrl(r.PathValue("uid")), r.Body)
	if err != nil {
		Fail(w, http.StatusBadGateway, err.Error())
		return
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Warn().Err(err).Msg("live inputs proxy")
		Fail(w, http.StatusBadGateway, "Live inputs service is unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()
	h := w.Header()
	for k, v := range resp.Header {
		if k == "Content-Length" || k == "Connection" || k == "Transfer-Encoding" {
			continue
		}
		h[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
