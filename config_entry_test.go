package flagdeck

import (
	"encoding/json"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestConfigEntrySerializeRoundTrip(t *testing.T) {
	c := qt.New(t)
	var conf ConfigJson
	c.Assert(json.Unmarshal([]byte(testConfigBody), &conf), qt.IsNil)
	entry := &configEntry{
		config:     &conf,
		configJSON: []byte(testConfigBody),
		etag:       `"e1"`,
		fetchTime:  time.UnixMilli(1724500000123),
	}

	data, err := entry.serialize()
	c.Assert(err, qt.IsNil)

	parsed, err := parseConfigEntry(data)
	c.Assert(err, qt.IsNil)
	c.Assert(parsed.etag, qt.Equals, entry.etag)
	c.Assert(string(parsed.configJSON), qt.Equals, testConfigBody)
	// The fetch time is stored as epoch seconds but survives with
	// millisecond precision.
	c.Assert(parsed.fetchTime.UnixMilli(), qt.Equals, entry.fetchTime.UnixMilli())
	c.Assert(parsed.config.Settings["flag"].VariationID, qt.Equals, "v1")
	c.Assert(parsed.isEmpty(), qt.IsFalse)
}

func TestConfigEntrySerializedFormat(t *testing.T) {
	c := qt.New(t)
	entry := &configEntry{
		config:     &ConfigJson{},
		configJSON: []byte(`{"f":{}}`),
		etag:       "tag",
		fetchTime:  time.UnixMilli(1500),
	}
	data, err := entry.serialize()
	c.Assert(err, qt.IsNil)

	// The external representation is shared with other processes; the
	// key names and the epoch-seconds fetch time are fixed.
	var external map[string]json.RawMessage
	c.Assert(json.Unmarshal(data, &external), qt.IsNil)
	c.Assert(string(external["config"]), qt.Equals, `{"f":{}}`)
	c.Assert(string(external["etag"]), qt.Equals, `"tag"`)
	c.Assert(string(external["fetch_time"]), qt.Equals, "1.5")
}

func TestParseConfigEntryInvalid(t *testing.T) {
	c := qt.New(t)

	_, err := parseConfigEntry([]byte("not json"))
	c.Assert(err, qt.Not(qt.IsNil))

	_, err = parseConfigEntry([]byte(`{"config":"not an object","etag":"e","fetch_time":1}`))
	c.Assert(err, qt.Not(qt.IsNil))
}
