package flagdeck

// ConfigJson describes a FlagDeck config JSON document. The single
// letter JSON keys are fixed by server compatibility.
type ConfigJson struct {
	// Settings is the map of the available feature flags and settings.
	Settings map[string]*Setting `json:"f"`
	// Segments is the list of available segments, referenced by
	// positional index from segment conditions.
	Segments []*Segment `json:"s"`
	// Preferences contains additional metadata.
	Preferences *Preferences `json:"p"`
}

type Preferences struct {
	// URL is the server URL hint for subsequent fetches.
	URL string `json:"u"`
	// Redirect is NoDirect, ShouldRedirect or ForceRedirect.
	Redirect *RedirectionKind `json:"r"`
	// Salt is combined with a per-evaluation context salt in the
	// sensitive comparators.
	Salt string `json:"s"`
}

// Setting holds all the metadata of a feature flag or setting.
type Setting struct {
	// Type describes the setting's type. It can be BoolSetting, StringSetting, IntSetting or FloatSetting.
	Type SettingType `json:"t"`
	// Value holds the setting's value served when no targeting rule matches during an evaluation.
	Value *SettingValue `json:"v"`
	// VariationID is the variation ID.
	VariationID string `json:"i"`
	// PercentageRuleAttribute is the User Object attribute which serves as the basis of
	// percentage bucketing. When empty, the user identifier is used.
	PercentageRuleAttribute string `json:"a"`
	// TargetingRules is the list of targeting rules (where there is a logical OR relation between the items).
	TargetingRules []*TargetingRule `json:"r"`
}

// TargetingRule describes a targeting rule used in the flag evaluation process.
// It either serves a fixed value or partitions the user space with
// percentage options; the two THEN parts are mutually exclusive.
type TargetingRule struct {
	// Conditions is the list of conditions (where there is a logical AND relation between the items).
	Conditions []*Condition `json:"c"`
	// ServedValue is the value associated with the targeting rule or nil
	// if the targeting rule has a percentage options THEN part.
	ServedValue *ServedValue `json:"s"`
	// PercentageOptions is the list of percentage options associated with the
	// targeting rule or nil if the targeting rule has a served value THEN part.
	PercentageOptions []*PercentageOption `json:"p"`
}

type ServedValue struct {
	// Value is the value served when the targeting rule matches.
	Value *SettingValue `json:"v"`
	// VariationID of the targeting rule.
	VariationID string `json:"i"`
}

// PercentageOption describes a percentage option used in targeting rules.
type PercentageOption struct {
	// Percentage is a number between 0 and 100 that represents a randomly allocated
	// fraction of the users. Percentages across a rule's options sum to 100.
	Percentage int `json:"p"`
	// Value is the served value of the percentage option.
	Value *SettingValue `json:"v"`
	// VariationID of the percentage option.
	VariationID string `json:"i"`
}

// Segment describes a named, reusable list of comparison rules.
type Segment struct {
	// Name of the segment; used as the context salt when evaluating the
	// segment's rules.
	Name string `json:"n"`
	// Rules is the list of comparison rules (has a logical AND relation between the items).
	Rules []*ComparisonRule `json:"r"`
}

// Condition is a discriminated union of ComparisonRule, SegmentCondition and
// DependentFlagCondition; exactly one of the fields is set.
type Condition struct {
	// ComparisonRule describes a condition that works with User Object attributes.
	ComparisonRule *ComparisonRule `json:"u"`
	// SegmentCondition describes a condition that works with a segment.
	SegmentCondition *SegmentCondition `json:"s"`
	// DependentFlagCondition describes a condition that works with another feature flag.
	DependentFlagCondition *DependentFlagCondition `json:"p"`
}

// ComparisonRule describes a condition based on User Object attributes.
type ComparisonRule struct {
	// ComparisonAttribute is the User Object attribute the condition is based on.
	// Can be "Identifier", "Email", "Country" or any custom attribute.
	ComparisonAttribute string `json:"a"`
	// Comparator is the operator which defines the relation between the
	// comparison attribute and the comparison value.
	Comparator Comparator `json:"c"`
	// StringValue is a value in text format that the User Object attribute is compared to.
	StringValue *string `json:"s"`
	// DoubleValue is a value in numeric format that the User Object attribute is compared to.
	DoubleValue *float64 `json:"d"`
	// StringListValue is a value in text array format that the User Object attribute is compared to.
	StringListValue []string `json:"l"`
}

// SegmentCondition describes a condition based on a segment.
type SegmentCondition struct {
	// SegmentIndex identifies the segment the condition is based on.
	SegmentIndex int `json:"s"`
	// Comparator is the operator which defines the expected result of the
	// evaluation of the segment.
	Comparator SegmentComparator `json:"c"`
}

// DependentFlagCondition describes a condition based on the evaluated
// value of another feature flag.
type DependentFlagCondition struct {
	// DependencyKey is the key of the flag the condition depends on.
	DependencyKey string `json:"f"`
	// Comparator is the operator which defines the relation between the evaluated
	// value of the dependency and the comparison value.
	Comparator DependencyComparator `json:"c"`
	// Value the evaluated value of the dependency is compared to. Its type
	// must match the dependency's setting type.
	Value *SettingValue `json:"v"`
}

// SettingValue describes the possible values of a feature flag or setting.
// Exactly one field is set, selected by the setting's type.
type SettingValue struct {
	// BoolValue holds a bool feature flag's value.
	BoolValue *bool `json:"b,omitempty"`
	// StringValue holds a string setting's value.
	StringValue *string `json:"s,omitempty"`
	// IntValue holds a whole number setting's value.
	IntValue *int `json:"i,omitempty"`
	// DoubleValue holds a decimal number setting's value.
	DoubleValue *float64 `json:"d,omitempty"`
}

// get returns the slot selected by the setting type, or nil when the
// slot is empty.
func (v *SettingValue) get(settingType SettingType) interface{} {
	if v == nil {
		return nil
	}
	switch settingType {
	case BoolSetting:
		if v.BoolValue != nil {
			return *v.BoolValue
		}
	case StringSetting:
		if v.StringValue != nil {
			return *v.StringValue
		}
	case IntSetting:
		if v.IntValue != nil {
			return *v.IntValue
		}
	case FloatSetting:
		if v.DoubleValue != nil {
			return *v.DoubleValue
		}
	}
	return nil
}

type RedirectionKind uint8

const (
	// NoDirect indicates that the configuration is available
	// in this request, but that the next request should be
	// made to the redirected address.
	NoDirect RedirectionKind = 0

	// ShouldRedirect indicates that there is no configuration
	// available at this address, and that the client should
	// redirect immediately. This does not take effect when
	// talking to a custom URL.
	ShouldRedirect RedirectionKind = 1

	// ForceRedirect indicates that there is no configuration
	// available at this address, and that the client should redirect
	// immediately even when talking to a custom URL.
	ForceRedirect RedirectionKind = 2
)

type SettingType int8

const (
	BoolSetting   SettingType = 0
	StringSetting SettingType = 1
	IntSetting    SettingType = 2
	FloatSetting  SettingType = 3

	// unknownSetting marks an evaluation that never reached a flag
	// descriptor (for example an unknown key).
	unknownSetting SettingType = -1
)

type Comparator uint8

const (
	OpOneOf                  Comparator = 0
	OpNotOneOf               Comparator = 1
	OpContains               Comparator = 2
	OpNotContains            Comparator = 3
	OpOneOfSemver            Comparator = 4
	OpNotOneOfSemver         Comparator = 5
	OpLessSemver             Comparator = 6
	OpLessEqSemver           Comparator = 7
	OpGreaterSemver          Comparator = 8
	OpGreaterEqSemver        Comparator = 9
	OpEqNum                  Comparator = 10
	OpNotEqNum               Comparator = 11
	OpLessNum                Comparator = 12
	OpLessEqNum              Comparator = 13
	OpGreaterNum             Comparator = 14
	OpGreaterEqNum           Comparator = 15
	OpOneOfSensitive         Comparator = 16
	OpNotOneOfSensitive      Comparator = 17
	OpBeforeDateTime         Comparator = 18
	OpAfterDateTime          Comparator = 19
	OpEqSensitive            Comparator = 20
	OpNotEqSensitive         Comparator = 21
	OpStartsWithSensitive    Comparator = 22
	OpEndsWithSensitive      Comparator = 23
	OpArrayContainsSensitive Comparator = 24
	OpArrayNotContainsSensitive Comparator = 25
)

type SegmentComparator uint8

const (
	OpSegmentIsIn    SegmentComparator = 0
	OpSegmentIsNotIn SegmentComparator = 1
)

type DependencyComparator uint8

const (
	OpDependencyEquals    DependencyComparator = 0
	OpDependencyNotEquals DependencyComparator = 1
)

var opStrings = []string{
	OpOneOf:                     "IS ONE OF",
	OpNotOneOf:                  "IS NOT ONE OF",
	OpContains:                  "CONTAINS",
	OpNotContains:               "DOES NOT CONTAIN",
	OpOneOfSemver:               "IS ONE OF (SemVer)",
	OpNotOneOfSemver:            "IS NOT ONE OF (SemVer)",
	OpLessSemver:                "< (SemVer)",
	OpLessEqSemver:              "<= (SemVer)",
	OpGreaterSemver:             "> (SemVer)",
	OpGreaterEqSemver:           ">= (SemVer)",
	OpEqNum:                     "= (Number)",
	OpNotEqNum:                  "<> (Number)",
	OpLessNum:                   "< (Number)",
	OpLessEqNum:                 "<= (Number)",
	OpGreaterNum:                "> (Number)",
	OpGreaterEqNum:              ">= (Number)",
	OpOneOfSensitive:            "IS ONE OF (Sensitive)",
	OpNotOneOfSensitive:         "IS NOT ONE OF (Sensitive)",
	OpBeforeDateTime:            "BEFORE (DateTime)",
	OpAfterDateTime:             "AFTER (DateTime)",
	OpEqSensitive:               "EQUALS (Sensitive)",
	OpNotEqSensitive:            "DOES NOT EQUAL (Sensitive)",
	OpStartsWithSensitive:       "STARTS WITH (Sensitive)",
	OpEndsWithSensitive:         "ENDS WITH (Sensitive)",
	OpArrayContainsSensitive:    "ARRAY CONTAINS (Sensitive)",
	OpArrayNotContainsSensitive: "ARRAY DOES NOT CONTAIN (Sensitive)",
}

var opSegmentStrings = []string{
	OpSegmentIsIn:    "IS IN SEGMENT",
	OpSegmentIsNotIn: "IS NOT IN SEGMENT",
}

var opDependencyStrings = []string{
	OpDependencyEquals:    "EQUALS",
	OpDependencyNotEquals: "DOES NOT EQUAL",
}

func (op Comparator) String() string {
	if int(op) >= len(opStrings) {
		return ""
	}
	return opStrings[op]
}

func (op SegmentComparator) String() string {
	if int(op) >= len(opSegmentStrings) {
		return ""
	}
	return opSegmentStrings[op]
}

func (op DependencyComparator) String() string {
	if int(op) >= len(opDependencyStrings) {
		return ""
	}
	return opDependencyStrings[op]
}

// comparisonValueKind selects which comparison value slot of a
// ComparisonRule a comparator reads.
type comparisonValueKind uint8

const (
	stringListValue comparisonValueKind = iota
	stringValue
	doubleValue
)

var opValueKinds = []comparisonValueKind{
	OpOneOf:                     stringListValue,
	OpNotOneOf:                  stringListValue,
	OpContains:                  stringValue,
	OpNotContains:               stringValue,
	OpOneOfSemver:               stringListValue,
	OpNotOneOfSemver:            stringListValue,
	OpLessSemver:                stringValue,
	OpLessEqSemver:              stringValue,
	OpGreaterSemver:             stringValue,
	OpGreaterEqSemver:           stringValue,
	OpEqNum:                     doubleValue,
	OpNotEqNum:                  doubleValue,
	OpLessNum:                   doubleValue,
	OpLessEqNum:                 doubleValue,
	OpGreaterNum:                doubleValue,
	OpGreaterEqNum:              doubleValue,
	OpOneOfSensitive:            stringListValue,
	OpNotOneOfSensitive:         stringListValue,
	OpBeforeDateTime:            stringValue,
	OpAfterDateTime:             stringValue,
	OpEqSensitive:               stringValue,
	OpNotEqSensitive:            stringValue,
	OpStartsWithSensitive:       stringValue,
	OpEndsWithSensitive:         stringValue,
	OpArrayContainsSensitive:    stringValue,
	OpArrayNotContainsSensitive: stringValue,
}

// comparisonValue returns the slot the comparator reads, for the
// evaluation log.
func (rule *ComparisonRule) comparisonValue() interface{} {
	if int(rule.Comparator) >= len(opValueKinds) {
		return nil
	}
	switch opValueKinds[rule.Comparator] {
	case stringListValue:
		return rule.StringListValue
	case doubleValue:
		if rule.DoubleValue != nil {
			return *rule.DoubleValue
		}
	case stringValue:
		if rule.StringValue != nil {
			return *rule.StringValue
		}
	}
	return nil
}
