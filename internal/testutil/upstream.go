package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Upstream is a fake vendor download server.
type Upstream struct {
	*httptest.Server

	mu       sync.RWMutex
	files    map[string][]byte
	status   map[string]int
	requests map[string]int
}

// NewUpstream starts a server publishing files under /routeros/.
func NewUpstream(files map[string][]byte) *Upstream {
	u := &Upstream{
		files:    make(map[string][]byte),
		status:   make(map[string]int),
		requests: make(map[string]int),
	}
	for name, data := range files {
		u.files[name] = data
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/routeros/", u.handle)
	u.Server = httptest.NewServer(mux)
	return u
}

// BaseURL returns the URL to configure as upstream.base_url.
func (u *Upstream) BaseURL() string {
	return u.URL + "/routeros"
}

// Set publishes data at a path relative to the base URL.
func (u *Upstream) Set(name string, data []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files[name] = data
}

// Fail makes a path answer with status.
func (u *Upstream) Fail(name string, status int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status[name] = status
}

// Requests returns how many times a path was requested with method.
func (u *Upstream) Requests(method, name string) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.requests[method+" "+name]
}

func (u *Upstream) handle(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/routeros/")

	u.mu.Lock()
	u.requests[r.Method+" "+name]++
	status, failing := u.status[name]
	data, ok := u.files[name]
	u.mu.Unlock()

	switch {
	case failing:
		http.Error(w, http.StatusText(status), status)
	case !ok:
		http.NotFound(w, r)
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write(data)
	}
}
