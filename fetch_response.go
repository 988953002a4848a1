package flagdeck

// FetchStatus describes the fetch response statuses.
type FetchStatus int

const (
	// Fetched indicates that a new configuration was fetched.
	Fetched FetchStatus = 0
	// NotModified indicates that the current configuration is not modified.
	NotModified FetchStatus = 1
	// Failure indicates that the configuration fetch failed.
	Failure FetchStatus = 2
)

// fetchResponse represents a configuration fetch response.
type fetchResponse struct {
	status FetchStatus
	// entry holds the fetched configuration when status is Fetched.
	entry *configEntry
	// err describes the failure when status is Failure.
	err error
	// transient reports whether a failure is worth retrying promptly.
	// Non-transient failures advance the cached entry's fetch time just
	// like a NotModified response.
	transient bool
}

// isFailed returns true if the fetch failed, otherwise false.
func (response fetchResponse) isFailed() bool {
	return response.status == Failure
}

// isNotModified returns true if the fetch resulted in a 304 Not Modified code, otherwise false.
func (response fetchResponse) isNotModified() bool {
	return response.status == NotModified
}

// isFetched returns true if a new configuration was fetched, otherwise false.
func (response fetchResponse) isFetched() bool {
	return response.status == Fetched
}
