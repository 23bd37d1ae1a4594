package topics

const (
	// Analytics
	AnalyticsEvents = "analytics_events"

	// Bets
	BetPlaced  = "bet_placed"
	BetSettled = "bet_settled"

	// DLQs
	AnalyticsEventsDLQ = "analytics_events_dlq"
)
