package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Expirer executa a expiração de uma aposta; a transição é protegida por CAS
// no engine, então um disparo atrasado após settlement é no-op.
type Expirer interface {
	ExpireBet(ctx context.Context, betID string) (bool, error)
}

// DueSource lista expirações vencidas persistidas no store
type DueSource interface {
	DueExpiries(ctx context.Context, now time.Time, limit int64) ([]string, error)
}

// Scheduler dispara a expiração automática de apostas. Mantém um timer
// in-process por aposta ativa e, em paralelo, varre o conjunto persistido de
// deadlines — assim expirações sobrevivem a restart do processo (timers são
// reconstruídos implicitamente pela varredura).
type Scheduler struct {
	log      *zap.Logger
	due      DueSource
	interval time.Duration
	batch    int64

	mu      sync.Mutex
	expirer Expirer
	timers  map[string]*time.Timer
}

func New(log *zap.Logger, due DueSource, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		log:      log,
		due:      due,
		interval: interval,
		batch:    100,
		timers:   make(map[string]*time.Timer),
	}
}

// SetExpirer injeta o engine (quebra o ciclo de construção engine↔scheduler)
func (s *Scheduler) SetExpirer(e Expirer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expirer = e
}

// Schedule agenda um timer para a deadline da aposta. Cada aposta ativa tem
// exatamente um timer pendente; reagendar substitui o anterior.
func (s *Scheduler) Schedule(betID string, at time.Time) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[betID]; ok {
		t.Stop()
	}
	s.timers[betID] = time.AfterFunc(delay, func() { s.fire(betID) })
}

// Cancel remove o timer pendente; o disparo tardio restante é tolerado
func (s *Scheduler) Cancel(betID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[betID]; ok {
		t.Stop()
		delete(s.timers, betID)
	}
}

func (s *Scheduler) fire(betID string) {
	s.mu.Lock()
	delete(s.timers, betID)
	exp := s.expirer
	s.mu.Unlock()
	if exp == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := exp.ExpireBet(ctx, betID); err != nil {
		s.log.Warn("expire failed", zap.String("betId", betID), zap.Error(err))
	}
}

// Run varre periodicamente as deadlines persistidas e expira o que venceu.
// Cobre apostas agendadas por processos anteriores (restart) e timers
// perdidos. Bloqueia até o contexto encerrar.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	s.mu.Lock()
	exp := s.expirer
	s.mu.Unlock()
	if exp == nil {
		return
	}
	ids, err := s.due.DueExpiries(ctx, time.Now(), s.batch)
	if err != nil {
		s.log.Warn("due sweep failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		s.Cancel(id)
		if _, err := exp.ExpireBet(ctx, id); err != nil {
			s.log.Warn("sweep expire failed", zap.String("betId", id), zap.Error(err))
		}
	}
}
