package events

type BetPlaced struct {
	BetID      string  `json:"bet_id"`
	UserID     string  `json:"user_id"`
	StreamID   string  `json:"stream_id"`
	BetType    string  `json:"bet_type"`
	StakeCents int64   `json:"stake_cents"`
	OddValue   float64 `json:"odd_value"`
	ExpiresAt  int64   `json:"expires_at_unix_ms"`
	TsUnixMs   int64   `json:"ts_unix_ms"`
}
