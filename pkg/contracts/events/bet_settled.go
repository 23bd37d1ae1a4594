package events

import "time"

// Evento emitido após transição terminal de uma aposta (WON, LOST, EXPIRED
// ou CANCELLED). Consumido por UI/telemetria; o engine não depende dele.
type BetSettled struct {
	BetID       string    `json:"betId"`
	UserID      string    `json:"userId"`
	StreamID    string    `json:"streamId"`
	BetType     string    `json:"betType"`
	Status      string    `json:"status"`
	PayoutCents int64     `json:"payoutCents,omitempty"`
	Ts          time.Time `json:"ts"`
}
