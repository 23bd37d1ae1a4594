package model

import "time"

// BetStatus é a máquina de estados de uma aposta.
// Transições válidas: PENDING→ACTIVE→{WON|LOST|EXPIRED} e
// PENDING/ACTIVE→CANCELLED. Estados terminais nunca transicionam.
type BetStatus string

const (
	StatusPending   BetStatus = "PENDING"
	StatusActive    BetStatus = "ACTIVE"
	StatusWon       BetStatus = "WON"
	StatusLost      BetStatus = "LOST"
	StatusCancelled BetStatus = "CANCELLED"
	StatusExpired   BetStatus = "EXPIRED"
)

// Terminal indica se o status encerra o ciclo de vida da aposta
func (s BetStatus) Terminal() bool {
	switch s {
	case StatusWon, StatusLost, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Tipos de aposta suportados (ver catalog)
const (
	TypeSpeedMilestone = "speed_milestone"
	TypePoseEvent      = "pose_event"
	TypeMotionPattern  = "motion_pattern"
	TypeObjectCount    = "object_count"
)

// Prediction é o payload tipado de uma aposta. Campos preenchidos dependem
// do BetType; a validação estrutural é feita pelo catálogo no placement.
type Prediction struct {
	// speed_milestone
	ThresholdKmh *float64 `json:"thresholdKmh,omitempty"`
	Direction    string   `json:"direction,omitempty"` // "above" | "below" | ""

	// pose_event
	Joint       string   `json:"joint,omitempty"`
	TargetAngle *float64 `json:"targetAngle,omitempty"` // graus

	// motion_pattern
	Pattern string `json:"pattern,omitempty"` // "sustained_motion" | "stable_tracking"

	// object_count
	Count *int64 `json:"count,omitempty"`

	// pose_event / object_count (opcional; defaults no catálogo)
	Tolerance *float64 `json:"tolerance,omitempty"`
}

// Bet é o registro persistido no Outcome Store. Mutado somente pelo engine.
type Bet struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	StreamID        string     `json:"streamId"`
	BetType         string     `json:"betType"`
	StakeCents      int64      `json:"stakeCents"`
	OddsAtPlacement float64    `json:"oddsAtPlacement"` // congelada no placement, 2 casas
	Prediction      Prediction `json:"prediction"`
	Status          BetStatus  `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	PayoutCents     int64      `json:"payoutCents,omitempty"` // somente WON
	SettledAt       *time.Time `json:"settledAt,omitempty"`
}

// PotentialPayoutCents calcula o payout bruto em caso de vitória
func (b *Bet) PotentialPayoutCents() int64 {
	return PayoutCents(b.StakeCents, b.OddsAtPlacement)
}

// PayoutCents aplica a odd congelada sobre o stake, arredondando para o
// centavo mais próximo (determinismo de payout)
func PayoutCents(stakeCents int64, odd float64) int64 {
	return int64(float64(stakeCents)*odd + 0.5)
}

// Balance é a visão por (user, stream) do ledger.
// Invariante: BalanceCents >= ReservedCents >= 0.
type Balance struct {
	UserID        string `json:"userId"`
	StreamID      string `json:"streamId"`
	BalanceCents  int64  `json:"balanceCents"`
	ReservedCents int64  `json:"reservedCents"`
}

// AvailableCents é o saldo livre para novas apostas
func (b Balance) AvailableCents() int64 { return b.BalanceCents - b.ReservedCents }
