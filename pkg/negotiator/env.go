package negotiator

import (
	"sync"

	"github.com/livecast/livecast/pkg/api"
)

// Env holds the values the edge pushes on connect.
type Env struct {
	mu       sync.RWMutex
	publicIp string
	token    string
}

func NewEnv(publicIp, token string) *Env { return &Env{publicIp: publicIp, token: token} }

// Update takes known keys from the items, missing keys keep old values.
func (e *Env) Update(items map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := items[api.EnvPublicIp]; ok {
		e.publicIp = v
	}
	if v, ok := items[api.EnvBearerToken]; ok {
		e.token = v
	}
}

func (e *Env) PublicIp() string { e.mu.RLock(); defer e.mu.RUnlock(); return e.publicIp }
func (e *Env) Token() string    { e.mu.RLock(); defer e.mu.RUnlock(); return e.token }
