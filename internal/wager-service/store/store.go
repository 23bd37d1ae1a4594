package store

import (
	"context"
	"errors"
	"time"

	"github.com/radieske/stream-wager-platform/internal/wager-service/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Store é a interface do Outcome Store usada pelo engine. A implementação
// Redis é a de produção; a implementação em memória serve os testes e o modo
// standalone. Toda operação de leitura-modificação-escrita (reserva de saldo,
// transição de status) é atômica dentro do Store — o engine nunca faz
// get-then-set simples contra saldo ou status.
type Store interface {
	// CreateActiveBet persiste a aposta (status ACTIVE), indexa nos conjuntos
	// por stream/usuário e agenda a entrada de expiração. Assume que a
	// reserva de fundos já aconteceu.
	CreateActiveBet(ctx context.Context, b *model.Bet) error

	GetBet(ctx context.Context, id string) (*model.Bet, error)

	// CASStatus grava `b` (já com o status terminal aplicado) somente se o
	// status armazenado ainda for `from`. Remove o índice de apostas ativas
	// e a entrada de expiração na mesma operação atômica. Retorna false sem
	// erro quando outro caminho venceu a corrida.
	CASStatus(ctx context.Context, b *model.Bet, from model.BetStatus) (bool, error)

	// ActiveBets retorna as apostas aguardando settlement no stream
	ActiveBets(ctx context.Context, streamID string) ([]*model.Bet, error)

	// UserBets retorna os ids de apostas do usuário no stream, mais recentes
	// primeiro, limitado a `limit`
	UserBets(ctx context.Context, userID, streamID string, limit int64) ([]*model.Bet, error)

	Balance(ctx context.Context, userID, streamID string) (model.Balance, error)
	Deposit(ctx context.Context, userID, streamID string, amountCents int64) (model.Balance, error)

	// Reserve incrementa a reserva se (saldo − reservado) ≥ stake, numa única
	// operação atômica. ErrInsufficientFunds caso contrário, sem efeito.
	Reserve(ctx context.Context, userID, streamID string, stakeCents int64) error

	// ReleaseReservation devolve o stake ao saldo disponível (cancelamento,
	// expiração ou rollback de placement)
	ReleaseReservation(ctx context.Context, userID, streamID string, stakeCents int64) error

	// SettleFunds libera a reserva e aplica o resultado: vitória credita
	// payout − stake; derrota debita o stake do saldo
	SettleFunds(ctx context.Context, userID, streamID string, stakeCents, payoutCents int64) error

	// AppendOutcome registra o resultado no histórico (stream, betType),
	// janela deslizante limitada
	AppendOutcome(ctx context.Context, streamID, betType string, won bool) error
	RecentOutcomes(ctx context.Context, streamID, betType string, n int64) ([]bool, error)

	// StreamActivity retorna o nível de atividade recente [0,1] do stream;
	// ErrNotFound quando não há medição fresca
	StreamActivity(ctx context.Context, streamID string) (float64, error)
	SetStreamActivity(ctx context.Context, streamID string, level float64) error

	// DueExpiries retorna ids de apostas cuja expiração venceu até `now`
	DueExpiries(ctx context.Context, now time.Time, limit int64) ([]string, error)
	RemoveExpiry(ctx context.Context, betID string) error
}

// Options controla TTLs e janelas do store
type Options struct {
	BetRetention   time.Duration // retenção de apostas para auditoria/odds
	BalanceTTL     time.Duration // renovado a cada escrita
	ActivityTTL    time.Duration // medições de atividade são efêmeras
	HistoryWindow  int64         // últimos N resultados por (stream, tipo)
	UserIndexLimit int64         // tamanho máximo do índice por usuário
}

// DefaultOptions retorna os valores usados em produção
func DefaultOptions() Options {
	return Options{
		BetRetention:   7 * 24 * time.Hour,
		BalanceTTL:     24 * time.Hour,
		ActivityTTL:    30 * time.Second,
		HistoryWindow:  50,
		UserIndexLimit: 200,
	}
}
