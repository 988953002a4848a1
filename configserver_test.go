package flagdeck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

var errNoResponse = errors.New("no response configured")

const testSDKKey = "test-sdk-key"

// configServer is an in-process stand-in for the configuration CDN.
type configServer struct {
	t   *testing.T
	srv *httptest.Server

	mu              sync.Mutex
	resp            configResponse
	requestCount    int
	lastIfNoneMatch string
}

type configResponse struct {
	// status defaults to http.StatusOK when zero.
	status int
	body   string
	etag   string
	sleep  time.Duration
}

func newConfigServer(t *testing.T) *configServer {
	s := &configServer{t: t}
	s.srv = httptest.NewServer(s)
	t.Cleanup(s.srv.Close)
	return s
}

// config returns a client configuration that talks to the server with
// manual polling, so tests control every fetch.
func (s *configServer) config() Config {
	return Config{
		SDKKey:      testSDKKey,
		BaseURL:     s.srv.URL,
		Logger:      DefaultLogger(LogLevelError),
		PollingMode: Manual,
	}
}

func (s *configServer) setResponse(resp configResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resp = resp
}

func (s *configServer) requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount
}

func (s *configServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !strings.HasSuffix(req.URL.Path, "/configuration-files/"+testSDKKey+"/"+configFileName) {
		http.NotFound(w, req)
		return
	}
	s.mu.Lock()
	resp := s.resp
	s.requestCount++
	s.lastIfNoneMatch = req.Header.Get("If-None-Match")
	s.mu.Unlock()

	if resp.sleep > 0 {
		time.Sleep(resp.sleep)
	}
	if resp.etag != "" {
		if req.Header.Get("If-None-Match") == resp.etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", resp.etag)
	}
	status := resp.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write([]byte(resp.body))
}

// fakeConfigProvider is a scripted configProvider for service-level
// tests; it can delay its answers and counts how many times it was
// asked.
type fakeConfigProvider struct {
	mu      sync.Mutex
	calls   int
	sleep   time.Duration
	respond func(etag string) fetchResponse
}

func newFakeConfigProvider() *fakeConfigProvider {
	return &fakeConfigProvider{}
}

func (f *fakeConfigProvider) getConfiguration(ctx context.Context, etag string) fetchResponse {
	f.mu.Lock()
	respond := f.respond
	sleep := f.sleep
	f.calls++
	f.mu.Unlock()
	if sleep > 0 {
		time.Sleep(sleep)
	}
	if respond == nil {
		return fetchResponse{status: Failure, err: errNoResponse, transient: true}
	}
	return respond(etag)
}

func (f *fakeConfigProvider) setResponse(response fetchResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = func(string) fetchResponse { return response }
}

func (f *fakeConfigProvider) setResponseWithDelay(response fetchResponse, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = func(string) fetchResponse { return response }
	f.sleep = delay
}

func (f *fakeConfigProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
