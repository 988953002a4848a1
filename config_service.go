package flagdeck

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// RefreshResult describes the outcome of a forced configuration refresh.
// A refresh never panics; failures are captured in Error.
type RefreshResult struct {
	Success bool
	Error   error
}

// configService coordinates the cached configuration and the fetcher:
// it runs the polling discipline, keeps the external cache in sync,
// guarantees at most one in-flight fetch and latches the readiness
// signal.
type configService struct {
	logger       *leveledLogger
	hooks        *Hooks
	fetcher      configProvider
	cache        ConfigCache
	cacheKey     string
	mode         PollingMode
	pollInterval time.Duration
	maxInitWait  time.Duration
	startTime    time.Time

	offline atomic.Bool

	readyOnce sync.Once
	ready     chan struct{}

	group singleflight.Group

	// mu guards cachedEntry, cachedEntryText and poller. It is never
	// held across network I/O.
	mu              sync.Mutex
	cachedEntry     *configEntry
	cachedEntryText []byte
	poller          *poller
}

type poller struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (p *poller) signalStop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
}

func newConfigService(cfg Config, fetcher configProvider, logger *leveledLogger, hooks *Hooks) *configService {
	service := &configService{
		logger:       logger,
		hooks:        hooks,
		fetcher:      fetcher,
		cache:        cfg.Cache,
		cacheKey:     produceCacheKey(cfg.SDKKey),
		mode:         cfg.PollingMode,
		pollInterval: cfg.PollInterval,
		maxInitWait:  cfg.MaxInitWaitTime,
		startTime:    time.Now(),
		cachedEntry:  emptyConfigEntry,
		ready:        make(chan struct{}),
	}
	service.offline.Store(cfg.Offline)
	if cfg.PollingMode == AutoPoll && !cfg.Offline {
		service.mu.Lock()
		service.startPollLocked()
		service.mu.Unlock()
	} else {
		service.setReady()
	}
	return service
}

// produceCacheKey derives the external cache key for an SDK key. The
// "python_" prefix and the config file name are part of the shared
// cache contract and must be preserved bit-for-bit so that caches can
// be shared across SDK implementations.
func produceCacheKey(sdkKey string) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(cacheKeyPrefix+configFileName+"_"+sdkKey)))
}

// getSettings returns the current flag mapping and its fetch time, or
// (nil, distantPast) when nothing is cached yet. Depending on the
// polling mode it may force a fetch (lazy, stale entry) or wait for the
// first auto-poll fetch up to the max init wait time.
func (service *configService) getSettings(ctx context.Context) (map[string]*Setting, time.Time) {
	entry := service.currentEntry(ctx)
	if entry.isEmpty() {
		return nil, distantPast
	}
	return entry.config.Settings, entry.fetchTime
}

// currentEntry implements the mode-dependent part of getSettings but
// hands back the whole entry so the evaluator can see segments and
// preferences too.
func (service *configService) currentEntry(ctx context.Context) *configEntry {
	switch service.mode {
	case Lazy:
		entry, _ := service.fetchIfOlder(ctx, time.Now().Add(-service.pollInterval), false)
		return entry
	case AutoPoll:
		if !service.isReady() {
			elapsed := time.Since(service.startTime)
			if elapsed < service.maxInitWait {
				service.waitForReady(service.maxInitWait - elapsed)
			}
			// Max init wait time expired without result; serve whatever
			// is cached and stop blocking subsequent callers.
			if !service.isReady() {
				service.setReady()
				service.mu.Lock()
				entry := service.cachedEntry
				service.mu.Unlock()
				return entry
			}
		}
	}
	entry, _ := service.fetchIfOlder(ctx, distantPast, true)
	return entry
}

// refresh forces a fetch regardless of the cached entry's age.
func (service *configService) refresh(ctx context.Context) RefreshResult {
	_, err := service.fetchIfOlder(ctx, distantFuture, false)
	return RefreshResult{Success: err == nil, Error: err}
}

// setOnline allows the service to initiate HTTP calls and restarts the
// poller in auto-poll mode. Idempotent.
func (service *configService) setOnline() {
	service.mu.Lock()
	if !service.offline.Load() {
		service.mu.Unlock()
		return
	}
	service.offline.Store(false)
	if service.mode == AutoPoll {
		service.startPollLocked()
	}
	service.mu.Unlock()
	service.logger.Infof(5200, "switched to ONLINE mode")
}

// setOffline forbids HTTP calls and stops the poller in auto-poll mode,
// waiting for its current iteration to finish. Idempotent.
func (service *configService) setOffline() {
	service.mu.Lock()
	if service.offline.Load() {
		service.mu.Unlock()
		return
	}
	service.offline.Store(true)
	p := service.poller
	service.poller = nil
	service.mu.Unlock()
	// Join outside the lock; the poller may be blocked on it.
	if p != nil {
		p.signalStop()
		<-p.done
	}
	service.logger.Infof(5200, "switched to OFFLINE mode")
}

// isOffline is a lock-free read of the offline flag.
func (service *configService) isOffline() bool {
	return service.offline.Load()
}

// close signals the poller to stop without waiting for it.
func (service *configService) close() {
	service.mu.Lock()
	p := service.poller
	service.mu.Unlock()
	if p != nil {
		p.signalStop()
	}
}

// fetchIfOlder ensures the cached entry is newer than the given
// threshold, fetching when it isn't. It first syncs up with the
// external cache, then either serves from memory (fresh entry, offline
// mode or prefer-cache get calls) or joins the single-flight fetch.
func (service *configService) fetchIfOlder(ctx context.Context, threshold time.Time, preferCache bool) (*configEntry, error) {
	service.mu.Lock()
	// Sync up with the external cache; another process may have
	// refreshed the configuration since we last looked.
	if service.cachedEntry.isEmpty() || !service.cachedEntry.fetchTime.After(threshold) {
		entry := service.readCacheLocked(ctx)
		if !entry.isEmpty() && entry.etag != service.cachedEntry.etag {
			service.cachedEntry = entry
			service.hooks.invokeOnConfigChanged(service.logger, entry.config.Settings)
		}
	}

	// Cache isn't expired.
	if service.cachedEntry.fetchTime.After(threshold) {
		entry := service.cachedEntry
		service.setReady()
		service.mu.Unlock()
		return entry, nil
	}

	// Use the cache anyway on get calls in auto and manual poll modes.
	// The readiness check keeps callers subscribed to the ongoing fetch
	// during the max init wait time window of auto polling.
	if preferCache && service.isReady() {
		entry := service.cachedEntry
		service.mu.Unlock()
		return entry, nil
	}

	// In offline mode we are not allowed to initiate a fetch.
	if service.offline.Load() {
		entry := service.cachedEntry
		service.mu.Unlock()
		const offlineWarning = "Client is in offline mode, it cannot initiate HTTP calls"
		service.logger.Warnf(3200, offlineWarning)
		return entry, errors.New(offlineWarning)
	}

	etag := service.cachedEntry.etag
	service.mu.Unlock()

	// Single-flight: the first caller performs the network I/O, late
	// callers wait for it and share its result. The service lock is not
	// held across the fetch.
	entry, err, _ := service.group.Do(service.cacheKey, func() (interface{}, error) {
		return service.fetchAndIntegrate(ctx, etag)
	})
	return entry.(*configEntry), err
}

// fetchAndIntegrate performs the network call and folds the response
// into the cached entry under the service lock.
func (service *configService) fetchAndIntegrate(ctx context.Context, etag string) (*configEntry, error) {
	response := service.fetcher.getConfiguration(ctx, etag)

	service.mu.Lock()
	defer service.mu.Unlock()
	switch {
	case response.isFetched():
		service.cachedEntry = response.entry
		service.writeCacheLocked(ctx, response.entry)
		service.hooks.invokeOnConfigChanged(service.logger, response.entry.config.Settings)
	case (response.isNotModified() || (response.isFailed() && !response.transient)) && !service.cachedEntry.isEmpty():
		// The configuration is confirmed, or retrying won't help; either
		// way the entry's age is refreshed so the next poll does not
		// retry immediately. Entries already handed out to callers are
		// never written to, so the age advance installs a fresh copy.
		refreshed := *service.cachedEntry
		refreshed.fetchTime = time.Now()
		service.cachedEntry = &refreshed
		service.writeCacheLocked(ctx, &refreshed)
	}
	service.setReady()
	if response.isFailed() {
		return service.cachedEntry, response.err
	}
	return service.cachedEntry, nil
}

// startPollLocked spins up the poller goroutine and returns once its
// loop is live, so online switches behave deterministically.
func (service *configService) startPollLocked() {
	p := &poller{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	service.poller = p
	started := make(chan struct{})
	go service.run(p, started)
	<-started
}

func (service *configService) run(p *poller, started chan struct{}) {
	defer close(p.done)
	close(started)
	for {
		service.fetchIfOlder(context.Background(), time.Now().Add(-service.pollInterval), false)
		select {
		case <-p.stop:
			return
		case <-time.After(service.pollInterval):
		}
	}
}

func (service *configService) isReady() bool {
	select {
	case <-service.ready:
		return true
	default:
		return false
	}
}

func (service *configService) waitForReady(timeout time.Duration) {
	select {
	case <-service.ready:
	case <-time.After(timeout):
	}
}

// setReady latches the readiness signal; on_client_ready fires exactly
// once.
func (service *configService) setReady() {
	service.readyOnce.Do(func() {
		close(service.ready)
		service.hooks.invokeOnClientReady(service.logger)
	})
}

func (service *configService) readCacheLocked(ctx context.Context) *configEntry {
	if service.cache == nil {
		return emptyConfigEntry
	}
	data, err := service.cache.Get(ctx, service.cacheKey)
	if err != nil {
		service.logger.Errorf(2200, "error occurred while reading the cache: %v", err)
		return emptyConfigEntry
	}
	if len(data) == 0 || string(data) == string(service.cachedEntryText) {
		return emptyConfigEntry
	}
	// Remember the blob before parsing so a broken blob isn't reparsed
	// on every poll.
	service.cachedEntryText = data
	entry, err := parseConfigEntry(data)
	if err != nil {
		service.logger.Errorf(2200, "error occurred while reading the cache: %v", err)
		return emptyConfigEntry
	}
	return entry
}

func (service *configService) writeCacheLocked(ctx context.Context, entry *configEntry) {
	if service.cache == nil {
		return
	}
	data, err := entry.serialize()
	if err == nil {
		err = service.cache.Set(ctx, service.cacheKey, data)
	}
	if err != nil {
		service.logger.Errorf(2201, "error occurred while writing the cache: %v", err)
	}
}
