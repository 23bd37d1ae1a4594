package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// StreamID: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type     string `json:"type"`     // subscribe | unsubscribe | ping
	StreamID string `json:"streamId"` // requerido em subscribe/unsubscribe
}

// BetUpdate representa uma transição de aposta enviada aos clientes inscritos
// no stream correspondente
type BetUpdate struct {
	StreamID    string `json:"streamId"`
	BetID       string `json:"betId"`
	UserID      string `json:"userId"`
	BetType     string `json:"betType"`
	Status      string `json:"status"`
	PayoutCents int64  `json:"payoutCents,omitempty"`
}
