package dto

import "github.com/radieske/stream-wager-platform/internal/wager-service/model"

// PlaceBetRequest é o corpo de POST /bets. A identidade vem do header
// X-User-ID (injetado pelo gateway/auth, colaborador externo).
type PlaceBetRequest struct {
	StreamID        string           `json:"streamId"`
	BetType         string           `json:"betType"`
	StakeCents      int64            `json:"stakeCents"`
	Prediction      model.Prediction `json:"prediction"`
	DurationSeconds int64            `json:"durationSeconds,omitempty"`
}

// DepositRequest é o corpo de POST /balance/{streamId}/deposit
type DepositRequest struct {
	AmountCents int64 `json:"amountCents"`
}
