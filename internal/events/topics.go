package events

// Topic constants for domain events emitted by the engine.
const (
	// TopicRateUpdated fires after a rate record write, once the matching
	// cache entries have been swept.
	TopicRateUpdated = "rate.updated"
	// TopicRateCollision fires when multiple active rate records overlap
	// for the same jurisdiction scope.
	TopicRateCollision = "rate.collision"
	// TopicCategoryFallback fires when an unrecognised product category
	// fell back to a jurisdiction's general rate.
	TopicCategoryFallback = "category.fallback"
	// TopicRateDeviation fires when a calculation's effective rate deviates
	// sharply from the state's historical average.
	TopicRateDeviation = "rate.deviation"
)

// DefaultTopics returns the canonical list of topics consumed by the
// compliance monitoring pipeline.
func DefaultTopics() []string {
	return []string{
		TopicRateUpdated,
		TopicRateCollision,
		TopicCategoryFallback,
		TopicRateDeviation,
	}
}
