package flagdeck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const globalBaseURL = "https://cdn.flagdeck.com"

// configProvider produces configuration fetch responses. The provider
// is responsible for conditional-request semantics: it sends the given
// ETag so the server can answer with NotModified.
type configProvider interface {
	getConfiguration(ctx context.Context, etag string) fetchResponse
}

// configFetcher fetches the configuration over HTTP.
type configFetcher struct {
	sdkKey  string
	baseURL string
	logger  *leveledLogger
	client  *http.Client
}

func newConfigFetcher(cfg Config, logger *leveledLogger) *configFetcher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = globalBaseURL
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}
	if timeout < 0 {
		timeout = 0
	}
	return &configFetcher{
		sdkKey:  cfg.SDKKey,
		baseURL: baseURL,
		logger:  logger,
		client: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
	}
}

func (fetcher *configFetcher) getConfiguration(ctx context.Context, etag string) fetchResponse {
	url := fetcher.baseURL + "/configuration-files/" + fetcher.sdkKey + "/" + configFileName
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fetcher.logger.Errorf(0, "config fetch failed: %v", err)
		return fetchResponse{status: Failure, err: err, transient: false}
	}
	request.Header.Set("X-FlagDeck-UserAgent", "FlagDeck-Go/"+version)
	if etag != "" {
		request.Header.Set("If-None-Match", etag)
	}

	response, err := fetcher.client.Do(request)
	if err != nil {
		fetcher.logger.Errorf(0, "config fetch failed: %v", err)
		return fetchResponse{status: Failure, err: err, transient: true}
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotModified:
		fetcher.logger.Debugf(0, "config fetch succeeded: not modified")
		return fetchResponse{status: NotModified}

	case response.StatusCode >= 200 && response.StatusCode < 300:
		body, err := io.ReadAll(response.Body)
		if err != nil {
			fetcher.logger.Errorf(0, "config fetch failed: %v", err)
			return fetchResponse{status: Failure, err: err, transient: true}
		}
		var conf ConfigJson
		if err := json.Unmarshal(body, &conf); err != nil {
			err = fmt.Errorf("config fetch returned an invalid body: %v", err)
			fetcher.logger.Errorf(0, "%v", err)
			return fetchResponse{status: Failure, err: err, transient: true}
		}
		fetcher.logger.Debugf(0, "config fetch succeeded: new config fetched")
		return fetchResponse{status: Fetched, entry: &configEntry{
			config:     &conf,
			configJSON: body,
			etag:       response.Header.Get("ETag"),
			fetchTime:  time.Now(),
		}}

	case response.StatusCode == http.StatusNotFound || response.StatusCode == http.StatusForbidden:
		err := fmt.Errorf("config fetch failed: double-check your SDK key (received unexpected response: %v)", response.Status)
		fetcher.logger.Errorf(0, "%v", err)
		return fetchResponse{status: Failure, err: err, transient: false}

	default:
		err := fmt.Errorf("config fetch failed: unexpected response received: %v", response.Status)
		fetcher.logger.Errorf(0, "%v", err)
		return fetchResponse{status: Failure, err: err, transient: true}
	}
}
