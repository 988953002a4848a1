package flagdeck

import (
	"encoding/json"
	"math"
	"time"
)

var (
	distantPast   = time.Unix(0, 0)
	distantFuture = time.Unix(1<<41, 0)
)

// configEntry holds a parsed config document together with its version
// token and the time it was retrieved from the server. Entries are
// immutable after construction; when the server confirms the
// configuration is not modified, a copy with an advanced fetch time
// replaces the cached one.
type configEntry struct {
	config     *ConfigJson
	configJSON []byte
	etag       string
	fetchTime  time.Time
}

// emptyConfigEntry is the distinguished "nothing fetched yet" value;
// emptiness is identity, not field equality, so that a deserialized
// entry with empty fields still counts as a real one.
var emptyConfigEntry = &configEntry{config: &ConfigJson{}, fetchTime: distantPast}

func (entry *configEntry) isEmpty() bool {
	return entry == emptyConfigEntry
}

// cachedConfigJson is the external cache representation of a config
// entry. The key names and the epoch-seconds fetch time are part of the
// shared cache contract across SDK implementations.
type cachedConfigJson struct {
	Config    json.RawMessage `json:"config"`
	ETag      string          `json:"etag"`
	FetchTime float64         `json:"fetch_time"`
}

func (entry *configEntry) serialize() ([]byte, error) {
	return json.Marshal(cachedConfigJson{
		Config:    entry.configJSON,
		ETag:      entry.etag,
		FetchTime: float64(entry.fetchTime.UnixMilli()) / 1000,
	})
}

func parseConfigEntry(data []byte) (*configEntry, error) {
	var cached cachedConfigJson
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	var conf ConfigJson
	if err := json.Unmarshal(cached.Config, &conf); err != nil {
		return nil, err
	}
	return &configEntry{
		config:     &conf,
		configJSON: cached.Config,
		etag:       cached.ETag,
		fetchTime:  time.UnixMilli(int64(math.Round(cached.FetchTime * 1000))),
	}, nil
}
