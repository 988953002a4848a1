package flagdeck

import "sync"

// Hooks is a registry of callbacks notified about the lifecycle events
// of a Client. Subscribers of an event are invoked in registration
// order. A panicking subscriber never breaks the client: the panic is
// recovered and logged.
type Hooks struct {
	mu              sync.Mutex
	onClientReady   []func()
	onConfigChanged []func(settings map[string]*Setting)
	onError         []func(message string)
}

// AddOnClientReady subscribes to the event fired when the client
// reaches its ready state. The event fires at most once.
func (h *Hooks) AddOnClientReady(callback func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClientReady = append(h.onClientReady, callback)
}

// AddOnConfigChanged subscribes to the event fired each time a
// configuration with a new version token is adopted.
func (h *Hooks) AddOnConfigChanged(callback func(settings map[string]*Setting)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConfigChanged = append(h.onConfigChanged, callback)
}

// AddOnError subscribes to the event fired when an error occurs inside
// the SDK.
func (h *Hooks) AddOnError(callback func(message string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, callback)
}

func (h *Hooks) invokeOnClientReady(logger *leveledLogger) {
	h.mu.Lock()
	callbacks := append([]func(){}, h.onClientReady...)
	h.mu.Unlock()
	for _, cb := range callbacks {
		protect(logger, "on_client_ready", cb)
	}
}

func (h *Hooks) invokeOnConfigChanged(logger *leveledLogger, settings map[string]*Setting) {
	h.mu.Lock()
	callbacks := append([]func(map[string]*Setting){}, h.onConfigChanged...)
	h.mu.Unlock()
	for _, cb := range callbacks {
		cb := cb
		protect(logger, "on_config_changed", func() { cb(settings) })
	}
}

func (h *Hooks) invokeOnError(logger *leveledLogger, message string) {
	h.mu.Lock()
	callbacks := append([]func(string){}, h.onError...)
	h.mu.Unlock()
	for _, cb := range callbacks {
		cb := cb
		protect(logger, "on_error", func() { cb(message) })
	}
}

func protect(logger *leveledLogger, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			// Log through the underlying logger to avoid re-entering
			// the on-error dispatch from a failing on-error subscriber.
			logger.Logger.Errorf("panic in %s subscriber: %v", event, r)
		}
	}()
	fn()
}
