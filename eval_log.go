package flagdeck

import (
	"fmt"
	"strings"
)

// evalLogBuilder buffers the diagnostic trace of a single top-level
// evaluation; the trace is flushed in one log event (5000) when the
// evaluation returns.
type evalLogBuilder struct {
	builder strings.Builder
}

func (b *evalLogBuilder) appendf(format string, args ...interface{}) {
	if b.builder.Len() > 0 {
		b.builder.WriteByte('\n')
	}
	fmt.Fprintf(&b.builder, format, args...)
}

func (b *evalLogBuilder) String() string {
	return b.builder.String()
}

func formatMatchRule(attribute string, userValue string, op Comparator, comparisonValue interface{}, value interface{}) string {
	return fmt.Sprintf("evaluating rule: [%s:%s] [%s] [%v] => match, returning: %v",
		attribute, userValue, op, comparisonValue, value)
}

func formatNoMatchRule(attribute string, userValue string, op Comparator, comparisonValue interface{}) string {
	return fmt.Sprintf("evaluating rule: [%s:%s] [%s] [%v] => no match",
		attribute, userValue, op, comparisonValue)
}

func formatValidationErrorRule(attribute string, userValue string, op Comparator, comparisonValue interface{}, err error) string {
	return fmt.Sprintf("evaluating rule: [%s:%s] [%s] [%v] => SKIP rule, validation error: %v",
		attribute, userValue, op, comparisonValue, err)
}
