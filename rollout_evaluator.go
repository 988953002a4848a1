package flagdeck

import (
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/blang/semver/v4"
)

// rolloutEvaluator is the deterministic, stateless mapping from
// (flag key, user, config document) to (value, variation id). It keeps
// no state between calls; repeated evaluations with equal inputs yield
// equal outputs, which percentage bucketing relies on.
type rolloutEvaluator struct {
	logger *leveledLogger
}

func newRolloutEvaluator(logger *leveledLogger) *rolloutEvaluator {
	return &rolloutEvaluator{logger: logger}
}

// evalResult carries everything a single evaluation produced.
type evalResult struct {
	value                   interface{}
	variationID             string
	matchedTargetingRule    *TargetingRule
	matchedPercentageOption *PercentageOption
	err                     error
	settingType             SettingType
}

func (e *rolloutEvaluator) evaluate(key string, user User, defaultValue interface{}, defaultVariationID string, conf *ConfigJson) evalResult {
	return e.evaluateKey(key, user, defaultValue, defaultVariationID, conf, map[string]bool{})
}

func (e *rolloutEvaluator) evaluateKey(key string, user User, defaultValue interface{}, defaultVariationID string, conf *ConfigJson, visited map[string]bool) evalResult {
	var settings map[string]*Setting
	var salt string
	if conf != nil {
		settings = conf.Settings
		if conf.Preferences != nil {
			salt = conf.Preferences.Salt
		}
	}

	setting := settings[key]
	if setting == nil {
		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, "'"+k+"'")
		}
		sort.Strings(keys)
		err := fmt.Errorf(
			"failed to evaluate setting '%s' (the key was not found in config JSON), "+
				"returning the default value that you specified in your application: '%v', "+
				"available keys: [%s]",
			key, defaultValue, strings.Join(keys, ", "))
		e.logger.Errorf(1001, "%v", err)
		return evalResult{value: defaultValue, variationID: defaultVariationID, err: err, settingType: unknownSetting}
	}

	visited[key] = true
	defer delete(visited, key)

	invalidUser := isInvalidUser(user)
	if invalidUser {
		e.logger.Warnf(4001,
			"cannot evaluate targeting rules and %% options for setting '%s' (User Object is not a valid User instance)", key)
		user = nil
	}

	if user == nil {
		if !invalidUser && len(setting.TargetingRules) > 0 {
			e.logger.Warnf(3001,
				"cannot evaluate targeting rules and %% options for setting '%s' (User Object is missing), "+
					"you should pass a User Object to the evaluation methods like GetValue() "+
					"in order to make targeting work properly", key)
		}
		value := setting.Value.get(setting.Type)
		if value == nil {
			value = defaultValue
		}
		e.logger.Infof(5000, "returning [%v]", value)
		return evalResult{
			value:       value,
			variationID: orDefault(setting.VariationID, defaultVariationID),
			settingType: setting.Type,
		}
	}

	evalLog := &evalLogBuilder{}
	evalLog.appendf("evaluating GetValue('%s')", key)
	evalLog.appendf("user object: %v", user)
	// The trace is flushed in a single event even on early return.
	defer func() {
		e.logger.Infof(5000, "%s", evalLog.String())
	}()

	for _, rule := range setting.TargetingRules {
		var served interface{}
		if rule.ServedValue != nil {
			served = rule.ServedValue.Value.get(setting.Type)
			if served == nil {
				served = defaultValue
			}
		}
		if !e.conditionsMatch(rule.Conditions, user, key, salt, served, conf, visited, evalLog) {
			continue
		}
		if rule.ServedValue != nil {
			return evalResult{
				value:                served,
				variationID:          orDefault(rule.ServedValue.VariationID, defaultVariationID),
				matchedTargetingRule: rule,
				settingType:          setting.Type,
			}
		}
		if len(rule.PercentageOptions) > 0 {
			if option, value := e.evaluatePercentageOptions(rule.PercentageOptions, setting, key, user, defaultValue, evalLog); option != nil {
				return evalResult{
					value:                   value,
					variationID:             orDefault(option.VariationID, defaultVariationID),
					matchedPercentageOption: option,
					settingType:             setting.Type,
				}
			}
		}
	}

	value := setting.Value.get(setting.Type)
	if value == nil {
		value = defaultValue
	}
	evalLog.appendf("returning %v", value)
	return evalResult{
		value:       value,
		variationID: orDefault(setting.VariationID, defaultVariationID),
		settingType: setting.Type,
	}
}

// evaluatePercentageOptions buckets the user with
// SHA1(key || bucket attribute) and walks the options until the running
// percentage total exceeds the hash. The bucket attribute defaults to
// the user identifier.
func (e *rolloutEvaluator) evaluatePercentageOptions(options []*PercentageOption, setting *Setting, key string, user User, defaultValue interface{}, evalLog *evalLogBuilder) (*PercentageOption, interface{}) {
	userKey := user.GetIdentifier()
	if setting.PercentageRuleAttribute != "" {
		userKey = user.GetAttribute(setting.PercentageRuleAttribute)
	}
	sum := sha1.Sum([]byte(key + userKey))
	hashVal64, _ := strconv.ParseInt(fmt.Sprintf("%x", sum)[:7], 16, 64)
	hashVal := int(hashVal64 % 100)

	bucket := 0
	for _, option := range options {
		bucket += option.Percentage
		if hashVal < bucket {
			value := option.Value.get(setting.Type)
			if value == nil {
				value = defaultValue
			}
			evalLog.appendf("evaluating %% options: returning %v", value)
			return option, value
		}
	}
	return nil, nil
}

// conditionsMatch reports whether every condition of a targeting rule
// holds, evaluating them in declaration order.
func (e *rolloutEvaluator) conditionsMatch(conditions []*Condition, user User, key string, salt string, servedValue interface{}, conf *ConfigJson, visited map[string]bool, evalLog *evalLogBuilder) bool {
	for _, condition := range conditions {
		switch {
		case condition == nil:
		case condition.ComparisonRule != nil:
			if !e.comparisonRuleMatches(condition.ComparisonRule, user, key, salt, servedValue, evalLog) {
				return false
			}
		case condition.SegmentCondition != nil:
			if !e.segmentConditionMatches(condition.SegmentCondition, user, salt, servedValue, conf.Segments, evalLog) {
				return false
			}
		case condition.DependentFlagCondition != nil:
			if !e.dependentFlagConditionMatches(condition.DependentFlagCondition, user, conf, visited, evalLog) {
				return false
			}
		}
	}
	return true
}

// segmentConditionMatches resolves the referenced segment and evaluates
// its rules with the segment name as the context salt. IS IN requires
// all rules to match, IS NOT IN requires none to match.
func (e *rolloutEvaluator) segmentConditionMatches(condition *SegmentCondition, user User, salt string, servedValue interface{}, segments []*Segment, evalLog *evalLogBuilder) bool {
	if condition.SegmentIndex < 0 || condition.SegmentIndex >= len(segments) {
		evalLog.appendf("evaluating segment condition: invalid segment index %d", condition.SegmentIndex)
		return false
	}
	segment := segments[condition.SegmentIndex]
	switch condition.Comparator {
	case OpSegmentIsIn:
		for _, rule := range segment.Rules {
			if !e.comparisonRuleMatches(rule, user, segment.Name, salt, servedValue, evalLog) {
				return false
			}
		}
		return true
	case OpSegmentIsNotIn:
		for _, rule := range segment.Rules {
			if e.comparisonRuleMatches(rule, user, segment.Name, salt, servedValue, evalLog) {
				return false
			}
		}
		return true
	}
	return false
}

// dependentFlagConditionMatches evaluates the dependency flag with the
// same user and compares its value to the condition's typed comparison
// value. A failing or cyclic dependency fails the condition.
func (e *rolloutEvaluator) dependentFlagConditionMatches(condition *DependentFlagCondition, user User, conf *ConfigJson, visited map[string]bool, evalLog *evalLogBuilder) bool {
	if visited[condition.DependencyKey] {
		err := fmt.Errorf("circular dependency detected at flag '%s'", condition.DependencyKey)
		e.logger.Errorf(0, "%v", err)
		evalLog.appendf("evaluating dependent flag condition: dependency error: %v", err)
		return false
	}

	dependency := e.evaluateKey(condition.DependencyKey, user, nil, "", conf, visited)
	if dependency.err != nil {
		evalLog.appendf("evaluating dependent flag condition: dependency error: %v", dependency.err)
		return false
	}

	comparisonValue := condition.Value.get(dependency.settingType)
	if comparisonValue == nil {
		evalLog.appendf("evaluating dependent flag condition: comparison value is missing")
		return false
	}

	switch condition.Comparator {
	case OpDependencyEquals:
		return dependency.value == comparisonValue
	case OpDependencyNotEquals:
		return dependency.value != comparisonValue
	}
	return false
}

func (e *rolloutEvaluator) comparisonRuleMatches(rule *ComparisonRule, user User, contextSalt string, salt string, servedValue interface{}, evalLog *evalLogBuilder) bool {
	attribute := rule.ComparisonAttribute
	op := rule.Comparator
	comparisonValue := rule.comparisonValue()

	userValue := user.GetAttribute(attribute)
	if userValue == "" {
		evalLog.appendf("%s", formatNoMatchRule(attribute, userValue, op, comparisonValue))
		return false
	}

	matched := false
	switch {
	case op == OpOneOf || op == OpNotOneOf:
		contains := false
		for _, item := range rule.StringListValue {
			if strings.TrimSpace(item) == userValue {
				contains = true
				break
			}
		}
		matched = contains == (op == OpOneOf)

	case op == OpContains || op == OpNotContains:
		if rule.StringValue == nil {
			return e.validationError(rule, userValue, errors.New("comparison value is missing"), evalLog)
		}
		matched = strings.Contains(userValue, *rule.StringValue) == (op == OpContains)

	case op == OpOneOfSemver || op == OpNotOneOfSemver:
		userVersion, err := semver.Parse(strings.TrimSpace(userValue))
		if err != nil {
			return e.validationError(rule, userValue, err, evalLog)
		}
		contains := false
		for _, item := range rule.StringListValue {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			version, err := semver.Parse(item)
			if err != nil {
				return e.validationError(rule, userValue, err, evalLog)
			}
			if userVersion.EQ(version) {
				contains = true
			}
		}
		matched = contains == (op == OpOneOfSemver)

	case op >= OpLessSemver && op <= OpGreaterEqSemver:
		if rule.StringValue == nil {
			return e.validationError(rule, userValue, errors.New("comparison value is missing"), evalLog)
		}
		userVersion, err := semver.Parse(strings.TrimSpace(userValue))
		if err != nil {
			return e.validationError(rule, userValue, err, evalLog)
		}
		version, err := semver.Parse(strings.TrimSpace(*rule.StringValue))
		if err != nil {
			return e.validationError(rule, userValue, err, evalLog)
		}
		switch op {
		case OpLessSemver:
			matched = userVersion.LT(version)
		case OpLessEqSemver:
			matched = userVersion.LTE(version)
		case OpGreaterSemver:
			matched = userVersion.GT(version)
		case OpGreaterEqSemver:
			matched = userVersion.GTE(version)
		}

	case op >= OpEqNum && op <= OpGreaterEqNum:
		if rule.DoubleValue == nil {
			return e.validationError(rule, userValue, errors.New("comparison value is missing"), evalLog)
		}
		userFloat, err := strconv.ParseFloat(strings.Replace(userValue, ",", ".", -1), 64)
		if err != nil {
			return e.validationError(rule, userValue, err, evalLog)
		}
		comparisonFloat := *rule.DoubleValue
		switch op {
		case OpEqNum:
			matched = userFloat == comparisonFloat
		case OpNotEqNum:
			matched = userFloat != comparisonFloat
		case OpLessNum:
			matched = userFloat < comparisonFloat
		case OpLessEqNum:
			matched = userFloat <= comparisonFloat
		case OpGreaterNum:
			matched = userFloat > comparisonFloat
		case OpGreaterEqNum:
			matched = userFloat >= comparisonFloat
		}

	case op == OpOneOfSensitive || op == OpNotOneOfSensitive:
		hash := hashForSensitive(userValue, salt, contextSalt)
		contains := false
		for _, item := range rule.StringListValue {
			if strings.TrimSpace(item) == hash {
				contains = true
				break
			}
		}
		matched = contains == (op == OpOneOfSensitive)

	case op == OpStartsWithSensitive || op == OpEndsWithSensitive:
		if rule.StringValue == nil {
			return e.validationError(rule, userValue, errors.New("comparison value is missing"), evalLog)
		}
		// The comparison value is "<length>_<sha256-hex>" where length
		// counts bytes of the hashed prefix or suffix.
		comparison := *rule.StringValue
		underscore := strings.Index(comparison, "_")
		if underscore < 0 {
			return e.validationError(rule, userValue, errors.New("comparison value has an invalid format"), evalLog)
		}
		length, err := strconv.Atoi(comparison[:underscore])
		if err != nil {
			return e.validationError(rule, userValue, err, evalLog)
		}
		if len(userValue) >= length && length >= 0 {
			var part string
			if op == OpStartsWithSensitive {
				part = userValue[:length]
			} else {
				part = userValue[len(userValue)-length:]
			}
			matched = hashForSensitive(part, salt, contextSalt) == comparison[underscore+1:]
		}

	default:
		// Declared in the comparison value table but carrying no
		// evaluation semantics (DateTime and the remaining sensitive
		// comparators); skip the rule.
		return e.validationError(rule, userValue, fmt.Errorf("unsupported comparator %d", op), evalLog)
	}

	if matched {
		evalLog.appendf("%s", formatMatchRule(attribute, userValue, op, comparisonValue, servedValue))
		return true
	}
	evalLog.appendf("%s", formatNoMatchRule(attribute, userValue, op, comparisonValue))
	return false
}

func (e *rolloutEvaluator) validationError(rule *ComparisonRule, userValue string, err error, evalLog *evalLogBuilder) bool {
	message := formatValidationErrorRule(rule.ComparisonAttribute, userValue, rule.Comparator, rule.comparisonValue(), err)
	e.logger.Warnf(0, "%s", message)
	evalLog.appendf("%s", message)
	return false
}

func hashForSensitive(userValue string, salt string, contextSalt string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(userValue+salt+contextSalt)))
}

func orDefault(variationID string, defaultVariationID string) string {
	if variationID == "" {
		return defaultVariationID
	}
	return variationID
}
