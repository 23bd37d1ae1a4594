package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-platform/internal/wager-service/catalog"
	"github.com/radieske/stream-wager-platform/internal/wager-service/model"
	"github.com/radieske/stream-wager-platform/internal/wager-service/odds"
	"github.com/radieske/stream-wager-platform/internal/wager-service/settle"
	"github.com/radieske/stream-wager-platform/internal/wager-service/store"
	"github.com/radieske/stream-wager-platform/pkg/contracts/events"
)

// Publisher emite eventos de ciclo de vida para ouvintes externos
// (UI/telemetria). Fire-and-forget: falha de publicação nunca afeta a
// corretude do engine.
type Publisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
	PublishBetSettled(ctx context.Context, e events.BetSettled) error
}

// Scheduler agenda a ação de expiração de uma aposta
type Scheduler interface {
	Schedule(betID string, at time.Time)
	Cancel(betID string)
}

// Archiver registra transições terminais para auditoria (write-behind)
type Archiver interface {
	ArchiveBet(ctx context.Context, b *model.Bet) error
	RecordLedger(ctx context.Context, b *model.Bet, operation string, amountCents int64) error
}

// Config do engine
type Config struct {
	DefaultWindow time.Duration // janela quando o caller não especifica
	MaxWindow     time.Duration // teto configurável de expiração
	EvalWorkers   int           // paralelismo da avaliação por evento
}

func DefaultConfig() Config {
	return Config{
		DefaultWindow: 60 * time.Second,
		MaxWindow:     10 * time.Minute,
		EvalWorkers:   8,
	}
}

// Engine orquestra o ciclo de vida das apostas: validação, reserva de fundos,
// persistência, agendamento de expiração e settlement. É o único escritor de
// estado de aposta; registry, calculator e store só retornam valores.
type Engine struct {
	log      *zap.Logger
	store    store.Store
	catalog  *catalog.Catalog
	odds     *odds.Calculator
	registry *settle.Registry
	sched    Scheduler
	publ     Publisher
	arch     Archiver
	cfg      Config

	// callbacks de métricas (counter++), opcionais
	OnPlaced    func()
	OnSettled   func(verdict string)
	OnExpired   func()
	OnCancelled func()
}

func New(log *zap.Logger, st store.Store, cat *catalog.Catalog, oc *odds.Calculator,
	reg *settle.Registry, cfg Config) *Engine {
	return &Engine{
		log:      log,
		store:    st,
		catalog:  cat,
		odds:     oc,
		registry: reg,
		cfg:      cfg,
	}
}

// SetScheduler injeta o scheduler de expiração (opcional em workers que só
// fazem settlement — a firing atrasada é tolerada via CAS)
func (e *Engine) SetScheduler(s Scheduler) { e.sched = s }

// SetPublisher injeta o publicador de eventos de ciclo de vida
func (e *Engine) SetPublisher(p Publisher) { e.publ = p }

// SetArchiver injeta o repositório de auditoria
func (e *Engine) SetArchiver(a Archiver) { e.arch = a }

// PlaceRequest é o pedido de aposta já autenticado
type PlaceRequest struct {
	UserID     string
	StreamID   string
	BetType    string
	StakeCents int64
	Prediction model.Prediction
	Duration   time.Duration // 0 => default
}

// PlaceBet valida, congela a odd, reserva fundos e persiste a aposta como
// ACTIVE. Reserva + persistência formam uma transação lógica: se a
// persistência falhar a reserva é desfeita (compensação).
func (e *Engine) PlaceBet(ctx context.Context, req PlaceRequest) (*model.Bet, error) {
	if err := e.catalog.Validate(req.BetType, req.StakeCents, req.Prediction); err != nil {
		return nil, err
	}
	entry, _ := e.catalog.Get(req.BetType)

	window := req.Duration
	if window <= 0 {
		window = e.cfg.DefaultWindow
	}
	if window > e.cfg.MaxWindow {
		window = e.cfg.MaxWindow
	}

	// Odd congelada neste instante; não é recalculada no settlement
	odd := e.odds.Calculate(ctx, req.StreamID, entry, req.Prediction)

	now := time.Now().UTC()
	bet := &model.Bet{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		StreamID:        req.StreamID,
		BetType:         req.BetType,
		StakeCents:      req.StakeCents,
		OddsAtPlacement: odd,
		Prediction:      req.Prediction,
		Status:          model.StatusActive,
		CreatedAt:       now,
		ExpiresAt:       now.Add(window),
	}

	if err := e.store.Reserve(ctx, req.UserID, req.StreamID, req.StakeCents); err != nil {
		return nil, err
	}
	if err := e.store.CreateActiveBet(ctx, bet); err != nil {
		// compensação: devolve a reserva antes de propagar
		if rerr := e.store.ReleaseReservation(ctx, req.UserID, req.StreamID, req.StakeCents); rerr != nil {
			e.log.Error("reservation rollback failed",
				zap.String("betId", bet.ID), zap.Error(rerr))
		}
		return nil, fmt.Errorf("persist bet: %w", err)
	}

	if e.sched != nil {
		e.sched.Schedule(bet.ID, bet.ExpiresAt)
	}
	if e.arch != nil {
		if err := e.arch.RecordLedger(ctx, bet, "RESERVE", req.StakeCents); err != nil {
			e.log.Warn("ledger record failed", zap.String("betId", bet.ID), zap.Error(err))
		}
	}
	if e.publ != nil {
		_ = e.publ.PublishBetPlaced(ctx, events.BetPlaced{
			BetID:      bet.ID,
			UserID:     bet.UserID,
			StreamID:   bet.StreamID,
			BetType:    bet.BetType,
			StakeCents: bet.StakeCents,
			OddValue:   bet.OddsAtPlacement,
			ExpiresAt:  bet.ExpiresAt.UnixMilli(),
		})
	}
	if e.OnPlaced != nil {
		e.OnPlaced()
	}

	e.log.Info("bet placed",
		zap.String("betId", bet.ID),
		zap.String("userId", bet.UserID),
		zap.String("streamId", bet.StreamID),
		zap.String("betType", bet.BetType),
		zap.Int64("stakeCents", bet.StakeCents),
		zap.Float64("odd", bet.OddsAtPlacement),
	)
	return bet, nil
}

// GetBet retorna a aposta; store.ErrNotFound quando ausente
func (e *Engine) GetBet(ctx context.Context, betID string) (*model.Bet, error) {
	return e.store.GetBet(ctx, betID)
}

// UserBets retorna as apostas do usuário no stream, mais recentes primeiro
func (e *Engine) UserBets(ctx context.Context, userID, streamID string, limit int64) ([]*model.Bet, error) {
	return e.store.UserBets(ctx, userID, streamID, limit)
}

// Balance retorna a visão do ledger por (user, stream)
func (e *Engine) Balance(ctx context.Context, userID, streamID string) (model.Balance, error) {
	return e.store.Balance(ctx, userID, streamID)
}

// Deposit credita saldo (caminho de funding em dev/teste)
func (e *Engine) Deposit(ctx context.Context, userID, streamID string, amountCents int64) (model.Balance, error) {
	return e.store.Deposit(ctx, userID, streamID, amountCents)
}

// CancelBet devolve o stake e transiciona para CANCELLED. Permitido apenas em
// PENDING/ACTIVE, somente pelo dono (ou admin).
func (e *Engine) CancelBet(ctx context.Context, betID, requesterID string, admin bool) (*model.Bet, error) {
	bet, err := e.store.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if bet.UserID != requesterID && !admin {
		return nil, ErrForbidden
	}
	if bet.Status != model.StatusPending && bet.Status != model.StatusActive {
		return nil, ErrNotCancellable
	}

	now := time.Now().UTC()
	updated := *bet
	updated.Status = model.StatusCancelled
	updated.SettledAt = &now

	ok, err := e.store.CASStatus(ctx, &updated, bet.Status)
	if err != nil {
		return nil, fmt.Errorf("cancel bet: %w", err)
	}
	if !ok {
		// settlement ou expiração venceu a corrida
		return nil, ErrNotCancellable
	}

	if err := e.store.ReleaseReservation(ctx, bet.UserID, bet.StreamID, bet.StakeCents); err != nil {
		e.log.Error("cancel refund failed", zap.String("betId", betID), zap.Error(err))
	}
	if e.sched != nil {
		e.sched.Cancel(betID)
	}
	e.afterTerminal(ctx, &updated, "REFUND", bet.StakeCents)
	if e.OnCancelled != nil {
		e.OnCancelled()
	}

	e.log.Info("bet cancelled", zap.String("betId", betID))
	return &updated, nil
}

// SettleBet avalia a aposta contra o evento e aplica exatamente uma transição
// terminal. No-op quando a aposta não está ACTIVE (idempotência sob entrega
// duplicada/fora de ordem) ou quando o veredito é inconclusivo — uma aposta
// nunca é dada como perdida por dado ausente.
func (e *Engine) SettleBet(ctx context.Context, betID string, ev *events.AnalyticsEvent) (*model.Bet, bool, error) {
	bet, err := e.store.GetBet(ctx, betID)
	if err != nil {
		return nil, false, err
	}
	if bet.Status != model.StatusActive {
		return bet, false, nil
	}

	strategy, ok := e.registry.Get(bet.BetType)
	if !ok {
		e.log.Warn("no strategy for bet type", zap.String("betType", bet.BetType))
		return bet, false, nil
	}
	verdict := strategy.Evaluate(bet.Prediction, ev)
	if verdict == settle.Inconclusive {
		return bet, false, nil
	}

	now := time.Now().UTC()
	updated := *bet
	updated.SettledAt = &now
	won := verdict == settle.Won
	if won {
		updated.Status = model.StatusWon
		updated.PayoutCents = bet.PotentialPayoutCents()
	} else {
		updated.Status = model.StatusLost
	}

	swapped, err := e.store.CASStatus(ctx, &updated, model.StatusActive)
	if err != nil {
		return nil, false, fmt.Errorf("settle bet: %w", err)
	}
	if !swapped {
		// expiração ou cancelamento venceu; devolve o estado atual
		cur, gerr := e.store.GetBet(ctx, betID)
		if gerr != nil {
			return bet, false, nil
		}
		return cur, false, nil
	}

	if err := e.store.SettleFunds(ctx, bet.UserID, bet.StreamID, bet.StakeCents, updated.PayoutCents); err != nil {
		e.log.Error("settle funds failed", zap.String("betId", betID), zap.Error(err))
	}
	if err := e.store.AppendOutcome(ctx, bet.StreamID, bet.BetType, won); err != nil {
		e.log.Warn("append outcome failed", zap.String("betId", betID), zap.Error(err))
	}
	if e.sched != nil {
		e.sched.Cancel(betID)
	}
	op, amount := "DEBIT", bet.StakeCents
	if won {
		op, amount = "CREDIT", updated.PayoutCents
	}
	e.afterTerminal(ctx, &updated, op, amount)
	if e.OnSettled != nil {
		e.OnSettled(verdict.String())
	}

	e.log.Info("bet settled",
		zap.String("betId", betID),
		zap.String("status", string(updated.Status)),
		zap.Int64("payoutCents", updated.PayoutCents),
	)
	return &updated, true, nil
}

// ExpireBet fecha com refund uma aposta cuja deadline venceu sem resolução.
// No-op se já terminal (corrida com settlement/cancelamento).
func (e *Engine) ExpireBet(ctx context.Context, betID string) (bool, error) {
	bet, err := e.store.GetBet(ctx, betID)
	if err != nil {
		if err == store.ErrNotFound {
			// registro já expirou do store; limpa o agendamento órfão
			_ = e.store.RemoveExpiry(ctx, betID)
			return false, nil
		}
		return false, err
	}
	if bet.Status.Terminal() {
		_ = e.store.RemoveExpiry(ctx, betID)
		return false, nil
	}

	now := time.Now().UTC()
	updated := *bet
	updated.Status = model.StatusExpired
	updated.SettledAt = &now

	swapped, err := e.store.CASStatus(ctx, &updated, bet.Status)
	if err != nil {
		return false, fmt.Errorf("expire bet: %w", err)
	}
	if !swapped {
		return false, nil
	}

	if err := e.store.ReleaseReservation(ctx, bet.UserID, bet.StreamID, bet.StakeCents); err != nil {
		e.log.Error("expire refund failed", zap.String("betId", betID), zap.Error(err))
	}
	e.afterTerminal(ctx, &updated, "REFUND", bet.StakeCents)
	if e.OnExpired != nil {
		e.OnExpired()
	}

	e.log.Info("bet expired", zap.String("betId", betID))
	return true, nil
}

// HandleAnalyticsEvent atualiza a atividade do stream e faz fan-out do evento
// para todas as apostas ativas do stream, avaliando em paralelo limitado —
// estratégias são puras e independentes, e o loop de ingestão não pode
// bloquear nos settlements.
func (e *Engine) HandleAnalyticsEvent(ctx context.Context, ev *events.AnalyticsEvent) error {
	if level, ok := activityLevel(ev); ok {
		if err := e.store.SetStreamActivity(ctx, ev.StreamID, level); err != nil {
			e.log.Warn("set activity failed", zap.String("streamId", ev.StreamID), zap.Error(err))
		}
	}

	bets, err := e.store.ActiveBets(ctx, ev.StreamID)
	if err != nil {
		return fmt.Errorf("load active bets: %w", err)
	}
	if len(bets) == 0 {
		return nil
	}

	workers := e.cfg.EvalWorkers
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, b := range bets {
		wg.Add(1)
		sem <- struct{}{}
		go func(betID string) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, _, err := e.SettleBet(ctx, betID, ev); err != nil {
				e.log.Warn("settle from event failed", zap.String("betId", betID), zap.Error(err))
			}
		}(b.ID)
	}
	wg.Wait()
	return nil
}

// activityLevel deriva um nível [0,1] da densidade de detecções e energia de
// movimento do evento
func activityLevel(ev *events.AnalyticsEvent) (float64, bool) {
	if ev.Vibrio == nil {
		return 0, false
	}
	density := math.Min(float64(ev.Vibrio.DetectionCount)/10.0, 1.0)
	level := 0.6*ev.Vibrio.MotionEnergy + 0.4*density
	return math.Min(math.Max(level, 0), 1), true
}

// afterTerminal executa os efeitos não-críticos de uma transição terminal:
// auditoria write-behind e emissão do evento bet_settled
func (e *Engine) afterTerminal(ctx context.Context, b *model.Bet, op string, amountCents int64) {
	if e.arch != nil {
		if err := e.arch.ArchiveBet(ctx, b); err != nil {
			e.log.Warn("archive bet failed", zap.String("betId", b.ID), zap.Error(err))
		}
		if err := e.arch.RecordLedger(ctx, b, op, amountCents); err != nil {
			e.log.Warn("ledger record failed", zap.String("betId", b.ID), zap.Error(err))
		}
	}
	if e.publ != nil {
		_ = e.publ.PublishBetSettled(ctx, events.BetSettled{
			BetID:       b.ID,
			UserID:      b.UserID,
			StreamID:    b.StreamID,
			BetType:     b.BetType,
			Status:      string(b.Status),
			PayoutCents: b.PayoutCents,
			Ts:          time.Now().UTC(),
		})
	}
}
