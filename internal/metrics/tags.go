package metrics

import "fmt"

// Tag formats a "key:value" StatsD tag.
func Tag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

// TierTag names the tier a metric belongs to.
func TierTag(tier string) string {
	return Tag("tier", tier)
}

// OperationTag creates an operation tag.
func OperationTag(op string) string {
	return Tag("operation", op)
}

// StatusTag creates a status tag (hit/miss/error).
func StatusTag(status string) string {
	return Tag("status", status)
}

// CircuitStateTag creates a circuit breaker state tag.
func CircuitStateTag(state string) string {
	return Tag("circuit_state", state)
}

func transitionTags(tier, from, to string) []string {
	return []string{TierTag(tier), Tag("from", from), Tag("to", to)}
}
