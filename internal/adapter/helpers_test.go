package adapter

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amishk599/jobradar/internal/model"
)

// roundTripFunc is an adapter to allow the use of ordinary functions as http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// rewriteClient sends every request to srv, keeping path and query, so
// adapters with hard-coded hosts can be tested against httptest servers.
func rewriteClient(srv *httptest.Server) *http.Client {
	return &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			req.URL.Scheme = "http"
			req.URL.Host = srv.Listener.Addr().String()
			return http.DefaultTransport.RoundTrip(req)
		}),
	}
}

func jsonServer(t *testing.T, payload string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func statusServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func assertKind(t *testing.T, err error, kind error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", kind)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
	var se *model.SourceError
	if !errors.As(err, &se) {
		t.Fatalf("expected *model.SourceError, got %T", err)
	}
}

func opts(name string) Options {
	return Options{Name: name, Company: "Acme Corp", Currency: "USD"}
}

func deref(f *float64) float64 {
	if f == nil {
		return -1
	}
	return *f
}
