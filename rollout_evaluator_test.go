package flagdeck

import (
	"encoding/json"
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
)

// evaluatorConfigBody exercises every comparator family: plain and
// sensitive one-of lists, substring and hashed prefix/suffix matching,
// semver and number ordering, segments, percentage options and flag
// dependencies (including a dependency cycle).
const evaluatorConfigBody = `{
	"p": {"s": "test-salt"},
	"s": [
		{"n": "beta", "r": [{"a": "Email", "c": 2, "s": "@beta."}]}
	],
	"f": {
		"isOneOf": {
			"t": 1, "v": {"s": "root"}, "i": "v-root",
			"r": [{
				"c": [{"u": {"a": "Email", "c": 0, "l": ["a@x.com", " b@x.com "]}}],
				"s": {"v": {"s": "V1"}, "i": "v-one"}
			}]
		},
		"percent": {
			"t": 1, "v": {"s": "P-root"},
			"r": [{
				"p": [
					{"p": 30, "v": {"s": "A"}, "i": "p-a"},
					{"p": 70, "v": {"s": "B"}, "i": "p-b"}
				]
			}]
		},
		"sensitive": {
			"t": 1, "v": {"s": "S-root"},
			"r": [{
				"c": [{"u": {"a": "Email", "c": 16, "l": ["ecce13d759257e5a969ff86a766cbac57a5684f8a3bc1507ca2a2f8b1a4f5f6c"]}}],
				"s": {"v": {"s": "S1"}}
			}]
		},
		"startsWith": {
			"t": 1, "v": {"s": "SW-root"},
			"r": [{
				"c": [{"u": {"a": "Email", "c": 22, "s": "3_74a35745276ab2a5067da563af36b654edef5e4db3ac781d3477fed32a51556f"}}],
				"s": {"v": {"s": "SW1"}}
			}]
		},
		"endsWith": {
			"t": 1, "v": {"s": "EW-root"},
			"r": [{
				"c": [{"u": {"a": "Email", "c": 23, "s": "3_c1b2ca3a3442e6f12cd0178789c215d028bffdfb522978c14a286dc490af0b66"}}],
				"s": {"v": {"s": "EW1"}}
			}]
		},
		"semver": {
			"t": 1, "v": {"s": "current"},
			"r": [{
				"c": [{"u": {"a": "AppVersion", "c": 6, "s": "1.2.3"}}],
				"s": {"v": {"s": "lower"}}
			}]
		},
		"semverOneOf": {
			"t": 1, "v": {"s": "other"},
			"r": [{
				"c": [{"u": {"a": "AppVersion", "c": 4, "l": ["1.0.0", " 1.1.0 ", ""]}}],
				"s": {"v": {"s": "pinned"}}
			}]
		},
		"number": {
			"t": 1, "v": {"s": "big"},
			"r": [{
				"c": [{"u": {"a": "Age", "c": 12, "d": 21}}],
				"s": {"v": {"s": "small"}}
			}]
		},
		"segIn": {
			"t": 1, "v": {"s": "outside"},
			"r": [{
				"c": [{"s": {"s": 0, "c": 0}}],
				"s": {"v": {"s": "in-beta"}}
			}]
		},
		"segNotIn": {
			"t": 1, "v": {"s": "member"},
			"r": [{
				"c": [{"s": {"s": 0, "c": 1}}],
				"s": {"v": {"s": "not-beta"}}
			}]
		},
		"child": {"t": 1, "v": {"s": "on"}},
		"parent": {
			"t": 1, "v": {"s": "parent-off"},
			"r": [{
				"c": [{"p": {"f": "child", "c": 0, "v": {"s": "on"}}}],
				"s": {"v": {"s": "parent-on"}}
			}]
		},
		"parentNotEq": {
			"t": 1, "v": {"s": "same"},
			"r": [{
				"c": [{"p": {"f": "child", "c": 1, "v": {"s": "off"}}}],
				"s": {"v": {"s": "different"}}
			}]
		},
		"cycA": {
			"t": 1, "v": {"s": "a-root"},
			"r": [{
				"c": [{"p": {"f": "cycB", "c": 0, "v": {"s": "x"}}}],
				"s": {"v": {"s": "a-rule"}}
			}]
		},
		"cycB": {
			"t": 1, "v": {"s": "b-root"},
			"r": [{
				"c": [{"p": {"f": "cycA", "c": 0, "v": {"s": "x"}}}],
				"s": {"v": {"s": "b-rule"}}
			}]
		},
		"dateTime": {
			"t": 1, "v": {"s": "dt-root"},
			"r": [{
				"c": [{"u": {"a": "Email", "c": 18, "s": "1680000000"}}],
				"s": {"v": {"s": "dt-rule"}}
			}]
		},
		"empty": {"t": 1}
	}
}`

func parseEvaluatorConfig(c *qt.C) *ConfigJson {
	var conf ConfigJson
	c.Assert(json.Unmarshal([]byte(evaluatorConfigBody), &conf), qt.IsNil)
	return &conf
}

func newTestEvaluator() *rolloutEvaluator {
	return newRolloutEvaluator(newLeveledLogger(DefaultLogger(LogLevelError), 0, &Hooks{}))
}

func TestEvaluateOneOf(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()

	result := e.evaluate("isOneOf", NewUserWithAdditionalAttributes("u1", "a@x.com", "", nil), "def", "", conf)
	c.Assert(result.value, qt.Equals, "V1")
	c.Assert(result.variationID, qt.Equals, "v-one")
	c.Assert(result.matchedTargetingRule, qt.Not(qt.IsNil))
	c.Assert(result.err, qt.IsNil)

	// List items are compared with surrounding whitespace trimmed.
	result = e.evaluate("isOneOf", NewUserWithAdditionalAttributes("u2", "b@x.com", "", nil), "def", "", conf)
	c.Assert(result.value, qt.Equals, "V1")

	result = e.evaluate("isOneOf", NewUserWithAdditionalAttributes("u3", "c@x.com", "", nil), "def", "", conf)
	c.Assert(result.value, qt.Equals, "root")
	c.Assert(result.variationID, qt.Equals, "v-root")
	c.Assert(result.matchedTargetingRule, qt.IsNil)
}

func TestEvaluatePercentageOptions(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()

	// sha1("percent"+"u1")[:7] % 100 == 46 -> second option,
	// sha1("percent"+"u2")[:7] % 100 == 14 -> first option.
	result := e.evaluate("percent", NewUser("u1"), "def", "", conf)
	c.Assert(result.value, qt.Equals, "B")
	c.Assert(result.variationID, qt.Equals, "p-b")
	c.Assert(result.matchedPercentageOption, qt.Not(qt.IsNil))

	result = e.evaluate("percent", NewUser("u2"), "def", "", conf)
	c.Assert(result.value, qt.Equals, "A")
	c.Assert(result.variationID, qt.Equals, "p-a")

	// Bucketing is deterministic per user.
	for i := 0; i < 10; i++ {
		c.Assert(e.evaluate("percent", NewUser("u1"), "def", "", conf).value, qt.Equals, "B")
	}
}

func TestPercentageDistribution(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()

	countA := 0
	for i := 0; i < 1000; i++ {
		if e.evaluate("percent", NewUser(fmt.Sprintf("user%d", i)), "def", "", conf).value == "A" {
			countA++
		}
	}
	// Exact value of the fixed hash function over user0..user999; it
	// also sits where a 30% split should.
	c.Assert(countA, qt.Equals, 282)
}

func TestEvaluateSensitiveOneOf(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()

	result := e.evaluate("sensitive", NewUserWithAdditionalAttributes("u1", "a@x.com", "", nil), "def", "", conf)
	c.Assert(result.value, qt.Equals, "S1")

	result = e.evaluate("sensitive", NewUserWithAdditionalAttributes("u2", "other@x.com", "", nil), "def", "", conf)
	c.Assert(result.value, qt.Equals, "S-root")
}

func TestEvaluateHashedPrefixSuffix(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()
	user := NewUserWithAdditionalAttributes("u1", "abcdef", "", nil)

	c.Assert(e.evaluate("startsWith", user, "def", "", conf).value, qt.Equals, "SW1")
	c.Assert(e.evaluate("endsWith", user, "def", "", conf).value, qt.Equals, "EW1")

	other := NewUserWithAdditionalAttributes("u2", "xyzuvw", "", nil)
	c.Assert(e.evaluate("startsWith", other, "def", "", conf).value, qt.Equals, "SW-root")
	c.Assert(e.evaluate("endsWith", other, "def", "", conf).value, qt.Equals, "EW-root")

	// Shorter than the hashed prefix: no match, no validation error.
	short := NewUserWithAdditionalAttributes("u3", "ab", "", nil)
	c.Assert(e.evaluate("startsWith", short, "def", "", conf).value, qt.Equals, "SW-root")
}

func TestEvaluateSemver(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()

	version := func(v string) User {
		return NewUserWithAdditionalAttributes("u1", "", "", map[string]string{"AppVersion": v})
	}
	c.Assert(e.evaluate("semver", version("1.0.0"), "def", "", conf).value, qt.Equals, "lower")
	c.Assert(e.evaluate("semver", version("1.2.3"), "def", "", conf).value, qt.Equals, "current")
	c.Assert(e.evaluate("semver", version("2.0.0"), "def", "", conf).value, qt.Equals, "current")
	// Unparsable user version: the rule is skipped with a validation
	// error and the fallback value is served.
	c.Assert(e.evaluate("semver", version("not-a-version"), "def", "", conf).value, qt.Equals, "current")

	c.Assert(e.evaluate("semverOneOf", version("1.1.0"), "def", "", conf).value, qt.Equals, "pinned")
	c.Assert(e.evaluate("semverOneOf", version("1.2.0"), "def", "", conf).value, qt.Equals, "other")
}

func TestEvaluateNumber(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()

	age := func(v string) User {
		return NewUserWithAdditionalAttributes("u1", "", "", map[string]string{"Age": v})
	}
	c.Assert(e.evaluate("number", age("18"), "def", "", conf).value, qt.Equals, "small")
	c.Assert(e.evaluate("number", age("21"), "def", "", conf).value, qt.Equals, "big")
	// Comma decimal separators are normalized before parsing.
	c.Assert(e.evaluate("number", age("20,5"), "def", "", conf).value, qt.Equals, "small")
	c.Assert(e.evaluate("number", age("NaN?"), "def", "", conf).value, qt.Equals, "big")
}

func TestEvaluateSegments(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()

	member := NewUserWithAdditionalAttributes("u1", "a@beta.example.com", "", nil)
	outsider := NewUserWithAdditionalAttributes("u2", "a@x.com", "", nil)

	c.Assert(e.evaluate("segIn", member, "def", "", conf).value, qt.Equals, "in-beta")
	c.Assert(e.evaluate("segIn", outsider, "def", "", conf).value, qt.Equals, "outside")

	c.Assert(e.evaluate("segNotIn", member, "def", "", conf).value, qt.Equals, "member")
	c.Assert(e.evaluate("segNotIn", outsider, "def", "", conf).value, qt.Equals, "not-beta")
}

func TestEvaluateDependentFlag(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()
	user := NewUser("u1")

	c.Assert(e.evaluate("parent", user, "def", "", conf).value, qt.Equals, "parent-on")
	c.Assert(e.evaluate("parentNotEq", user, "def", "", conf).value, qt.Equals, "different")
}

func TestEvaluateDependencyCycleTerminates(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()
	user := NewUser("u1")

	// cycA depends on cycB which depends back on cycA. The inner
	// evaluation fails the condition instead of recursing, so cycB falls
	// back to its root value; "b-root" != "x" fails cycA's rule too.
	result := e.evaluate("cycA", user, "def", "", conf)
	c.Assert(result.value, qt.Equals, "a-root")
	c.Assert(result.err, qt.IsNil)
}

func TestEvaluateUnsupportedComparatorSkipsRule(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()

	result := e.evaluate("dateTime", NewUserWithAdditionalAttributes("u1", "a@x.com", "", nil), "def", "", conf)
	c.Assert(result.value, qt.Equals, "dt-root")
	c.Assert(result.err, qt.IsNil)
}

func TestEvaluateMissingKey(t *testing.T) {
	c := qt.New(t)
	e := newTestEvaluator()

	conf := &ConfigJson{Settings: map[string]*Setting{
		"known": {Type: StringSetting, Value: &SettingValue{StringValue: strPtr("x")}},
	}}
	result := e.evaluate("unknown", nil, "fallback", "var-def", conf)
	c.Assert(result.value, qt.Equals, "fallback")
	c.Assert(result.variationID, qt.Equals, "var-def")
	c.Assert(result.err, qt.ErrorMatches, `failed to evaluate setting 'unknown'.*available keys: \['known'\]`)
	c.Assert(result.settingType, qt.Equals, unknownSetting)
}

func TestEvaluateNilConfig(t *testing.T) {
	c := qt.New(t)
	e := newTestEvaluator()

	result := e.evaluate("any", nil, true, "", nil)
	c.Assert(result.value, qt.Equals, true)
	c.Assert(result.err, qt.Not(qt.IsNil))
}

func TestEvaluateMissingUserServesRootValue(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()

	// Rules need a user; without one the root value is served without
	// an error.
	result := e.evaluate("isOneOf", nil, "def", "", conf)
	c.Assert(result.value, qt.Equals, "root")
	c.Assert(result.err, qt.IsNil)
}

func TestEvaluateTypedNilUserTreatedAsMissing(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()

	var user *UserData
	result := e.evaluate("isOneOf", user, "def", "", conf)
	c.Assert(result.value, qt.Equals, "root")
	c.Assert(result.err, qt.IsNil)
}

func TestEvaluateMissingValueSlotServesDefault(t *testing.T) {
	c := qt.New(t)
	conf := parseEvaluatorConfig(c)
	e := newTestEvaluator()

	result := e.evaluate("empty", nil, "fallback", "", conf)
	c.Assert(result.value, qt.Equals, "fallback")
}

func strPtr(s string) *string { return &s }
