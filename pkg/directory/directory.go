// Package directory serves the channel and live input REST API of the edge.
package directory

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/config"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/network/httpx"
	"github.com/livecast/livecast/pkg/store"
)

const (
	channelKey = "channel/"
	inputKey   = "input/"

	maxBodySize = 1 << 20
)

var errBadJson = errors.New("malformed json")

type Directory struct {
	store  store.Storage
	token  string
	remote string
	client *http.Client
	// serializes read-modify-write of the records
	mu  sync.Mutex
	now func() time.Time
	log *logger.Logger
}

func New(st store.Storage, conf config.Edge, log *logger.Logger) *Directory {
	return &Directory{
		store:  st,
		token:  conf.BearerToken,
		remote: conf.LiveInputsUrl,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		log:    log.Extend(log.With().Str("mod", "directory")),
	}
}

// Routes registers the REST endpoints.
// The mux should have no prefix, patterns carry methods.
func (d *Directory) Routes(mux *httpx.Mux) *httpx.Mux {
	mux.HandleFunc("GET /api/channels", d.listChannels)
	mux.HandleFunc("POST /api/channels", d.createChannel)
	mux.HandleFunc("PUT /api/channels", d.putChannel)
	mux.HandleFunc("GET /api/channels/{id}", d.getChannel)
	mux.HandleFunc("PATCH /api/channels/{id}", d.patchChannel)
	mux.HandleFunc("POST /api/channels/{id}/live_input", d.linkInput)
	mux.HandleFunc("DELETE /api/channels/{id}/live_input", d.unlinkInput)

	if d.remote != "" {
		mux.HandleFunc("/api/live_inputs", d.proxy)
		mux.HandleFunc("/api/live_inputs/{uid}", d.proxy)
	} else {
		mux.HandleFunc("GET /api/live_inputs", d.listInputs)
		mux.HandleFunc("POST /api/live_inputs", d.createInput)
		mux.HandleFunc("GET /api/live_inputs/{uid}", d.getInput)
		mux.HandleFunc("DELETE /api/live_inputs/{uid}", d.deleteInput)
	}
	mux.HandleFunc("/api/", NotFound)
	return mux
}

// NotFound answers unknown API paths.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	Fail(w, http.StatusNotFound, "API endpoint not found")
}

// Fail writes the error envelope.
func Fail(w http.ResponseWriter, code int, message string) {
	writeJson(w, code, api.Fail(code, message))
}

func writeJson(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

func readJson(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, v); err != nil {
		return errBadJson
	}
	return nil
}

func (d *Directory) load(ctx context.Context, key string, v any) error {
	data, err := d.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (d *Directory) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.store.Put(ctx, key, data)
}

func (d *Directory) internal(w http.ResponseWriter, err error) {
	d.log.Error().Err(err).Msg("storage")
	Fail(w, http.StatusInternalServerError, "Internal server error")
}
