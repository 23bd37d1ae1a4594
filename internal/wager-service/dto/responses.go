package dto

// BalanceResponse é a visão do ledger por (user, stream)
type BalanceResponse struct {
	StreamID       string `json:"streamId"`
	BalanceCents   int64  `json:"balanceCents"`
	ReservedCents  int64  `json:"reservedCents"`
	AvailableCents int64  `json:"availableCents"`
}

// SettleResponse é a resposta de POST /bets/{id}/settle
type SettleResponse struct {
	BetID   string `json:"betId"`
	Settled bool   `json:"settled"`
	Status  string `json:"status"`
}

// ErrorResponse carrega código estável legível por máquina + mensagem humana.
// Nunca expõe stack trace ou estado interno.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
