package directory

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Auth guards the mutating API calls with the bearer token
// or the admin credentials.
type Auth struct {
	token string
	user  string
	hash  []byte
}

// open paths authenticate otherwise
var openPaths = []string{"/api/whep", "/api/webrtc/play/", "/api/webrtc/live/"}

// NewAuth keeps only the bcrypt hash of the admin password.
// Empty password disables the admin login.
func NewAuth(token, user, password string) (*Auth, error) {
	a := &Auth{token: token, user: user}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		a.hash = hash
	}
	return a, nil
}

func (a *Auth) Enabled() bool { return a.token != "" }

// Middleware rejects unauthorized POST, PATCH and DELETE calls under /api/.
func (a *Auth) Middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.needsAuth(r) || a.Check(r) {
			h.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm=""`)
		Fail(w, http.StatusUnauthorized, "Unauthorized")
	})
}

func (a *Auth) needsAuth(r *http.Request) bool {
	if !a.Enabled() || !strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	switch r.Method {
	case http.MethodPost, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	for _, p := range openPaths {
		if r.URL.Path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(r.URL.Path, p)) {
			return false
		}
	}
	return true
}

// Check accepts the bearer token or the admin basic credentials.
func (a *Auth) Check(r *http.Request) bool {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) == 1
	}
	if user, pass, ok := r.BasicAuth(); ok && a.hash != nil {
		return user == a.user && bcrypt.CompareHashAndPassword(a.hash, []byte(pass)) == nil
	}
	return false
}
