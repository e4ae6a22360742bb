package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// FakeProvider is an in-process mail.tm compatible API backed by
// httptest. Handlers read the exported fields under the lock, so tests
// may change them between requests.
type FakeProvider struct {
	Server *httptest.Server

	mu sync.Mutex

	// Domains is served by GET /domains as hydra members.
	Domains []map[string]any

	// Messages is served by GET /messages.
	Messages []map[string]any

	// Details maps message ids to the body of GET /messages/{id}.
	Details map[string]map[string]any

	// Sources maps message ids to the raw RFC 5322 text of GET /sources/{id}.
	Sources map[string]string

	// Token is issued by POST /token.
	Token string

	// Fail maps "METHOD /path" to a status code answered instead of the
	// normal response.
	Fail map[string]int

	accounts []string
	hits     map[string]int
}

// NewFakeProvider starts a fake provider with one active domain,
// "example.com", and an empty inbox. The server closes on cleanup.
func NewFakeProvider(t *testing.T) *FakeProvider {
	t.Helper()

	p := &FakeProvider{
		Domains: []map[string]any{
			{"id": "d1", "domain": "example.com", "isActive": true, "isPrivate": false},
		},
		Details: map[string]map[string]any{},
		Sources: map[string]string{},
		Token:   "test-token",
		Fail:    map[string]int{},
		hits:    map[string]int{},
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Server.Close)

	return p
}

// URL returns the base URL of the fake provider.
func (p *FakeProvider) URL() string {
	return p.Server.URL
}

// SetFail makes "METHOD /path" answer status. Zero removes the failure.
func (p *FakeProvider) SetFail(route string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status == 0 {
		delete(p.Fail, route)
		return
	}
	p.Fail[route] = status
}

// SetMessages replaces the inbox.
func (p *FakeProvider) SetMessages(msgs ...map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = msgs
}

// Accounts returns the addresses created through POST /accounts.
func (p *FakeProvider) Accounts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.accounts...)
}

// Hits returns how many times "METHOD /path" was requested.
func (p *FakeProvider) Hits(route string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[route]
}

func (p *FakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	route := r.Method + " " + r.URL.Path
	p.hits[route]++

	if status, ok := p.Fail[route]; ok {
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "30")
		}
		http.Error(w, `{"detail":"injected failure"}`, status)
		return
	}

	authed := r.Header.Get("Authorization") == "Bearer "+p.Token

	switch {
	case route == "GET /domains":
		writeJSON(w, http.StatusOK, collection(p.Domains))

	case route == "POST /accounts":
		var body struct {
			Address string `json:"address"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.accounts = append(p.accounts, body.Address)
		writeJSON(w, http.StatusCreated, map[string]any{"id": "acc", "address": body.Address})

	case route == "POST /token":
		writeJSON(w, http.StatusOK, map[string]any{"id": "acc", "token": p.Token})

	case !authed:
		http.Error(w, `{"message":"JWT Token not found"}`, http.StatusUnauthorized)

	case route == "GET /messages":
		writeJSON(w, http.StatusOK, collection(p.Messages))

	case strings.HasPrefix(route, "GET /messages/"):
		d, ok := p.Details[strings.TrimPrefix(r.URL.Path, "/messages/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, d)

	case strings.HasPrefix(route, "GET /sources/"):
		id := strings.TrimPrefix(r.URL.Path, "/sources/")
		src, ok := p.Sources[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":          id,
			"downloadUrl": "/sources/" + id + "/download",
			"data":        src,
		})

	default:
		http.NotFound(w, r)
	}
}

func collection(members []map[string]any) map[string]any {
	if members == nil {
		members = []map[string]any{}
	}
	return map[string]any{
		"hydra:member":     members,
		"hydra:totalItems": len(members),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
