package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/radieske/stream-wager-platform/internal/wager-service/model"
)

// Memory implementa Store em memória, sob um único mutex. Usada nos testes e
// em execução standalone (sem Redis). A semântica de atomicidade é idêntica à
// da implementação Redis: reserva condicionada a saldo disponível e CAS de
// status numa única seção crítica.
type Memory struct {
	mu       sync.Mutex
	opt      Options
	bets     map[string]model.Bet
	active   map[string]map[string]struct{} // streamID -> bet ids
	userIdx  map[string][]string            // user:stream -> bet ids (ordem de criação)
	balances map[string]*model.Balance      // user:stream
	history  map[string][]bool              // stream:betType, mais recente primeiro
	activity map[string]activitySample
	expiries map[string]time.Time // betID -> expiresAt
}

type activitySample struct {
	level float64
	at    time.Time
}

func NewMemory(opt Options) *Memory {
	return &Memory{
		opt:      opt,
		bets:     make(map[string]model.Bet),
		active:   make(map[string]map[string]struct{}),
		userIdx:  make(map[string][]string),
		balances: make(map[string]*model.Balance),
		history:  make(map[string][]bool),
		activity: make(map[string]activitySample),
		expiries: make(map[string]time.Time),
	}
}

func pairKey(user, stream string) string { return user + ":" + stream }

func (m *Memory) CreateActiveBet(_ context.Context, b *model.Bet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bets[b.ID] = *b
	if m.active[b.StreamID] == nil {
		m.active[b.StreamID] = make(map[string]struct{})
	}
	m.active[b.StreamID][b.ID] = struct{}{}

	key := pairKey(b.UserID, b.StreamID)
	m.userIdx[key] = append(m.userIdx[key], b.ID)
	if n := int64(len(m.userIdx[key])); n > m.opt.UserIndexLimit {
		m.userIdx[key] = m.userIdx[key][n-m.opt.UserIndexLimit:]
	}
	m.expiries[b.ID] = b.ExpiresAt
	return nil
}

func (m *Memory) GetBet(_ context.Context, id string) (*model.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := b
	return &cp, nil
}

func (m *Memory) CASStatus(_ context.Context, b *model.Bet, from model.BetStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bets[b.ID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Status != from {
		return false, nil
	}
	m.bets[b.ID] = *b
	if set := m.active[b.StreamID]; set != nil {
		delete(set, b.ID)
	}
	delete(m.expiries, b.ID)
	return true, nil
}

func (m *Memory) ActiveBets(_ context.Context, streamID string) ([]*model.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Bet
	for id := range m.active[streamID] {
		if b, ok := m.bets[id]; ok && b.Status == model.StatusActive {
			cp := b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UserBets(_ context.Context, userID, streamID string, limit int64) ([]*model.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = m.opt.UserIndexLimit
	}
	ids := m.userIdx[pairKey(userID, streamID)]
	var out []*model.Bet
	for i := len(ids) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if b, ok := m.bets[ids[i]]; ok {
			cp := b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) balanceLocked(userID, streamID string) *model.Balance {
	key := pairKey(userID, streamID)
	b, ok := m.balances[key]
	if !ok {
		b = &model.Balance{UserID: userID, StreamID: streamID}
		m.balances[key] = b
	}
	return b
}

func (m *Memory) Balance(_ context.Context, userID, streamID string) (model.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.balanceLocked(userID, streamID), nil
}

func (m *Memory) Deposit(_ context.Context, userID, streamID string, amountCents int64) (model.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balanceLocked(userID, streamID)
	b.BalanceCents += amountCents
	return *b, nil
}

func (m *Memory) Reserve(_ context.Context, userID, streamID string, stakeCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balanceLocked(userID, streamID)
	if b.AvailableCents() < stakeCents {
		return ErrInsufficientFunds
	}
	b.ReservedCents += stakeCents
	return nil
}

func (m *Memory) ReleaseReservation(_ context.Context, userID, streamID string, stakeCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balanceLocked(userID, streamID)
	b.ReservedCents -= stakeCents
	return nil
}

func (m *Memory) SettleFunds(_ context.Context, userID, streamID string, stakeCents, payoutCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balanceLocked(userID, streamID)
	b.ReservedCents -= stakeCents
	if payoutCents > 0 {
		b.BalanceCents += payoutCents - stakeCents
	} else {
		b.BalanceCents -= stakeCents
	}
	return nil
}

func (m *Memory) AppendOutcome(_ context.Context, streamID, betType string, won bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := streamID + ":" + betType
	h := append([]bool{won}, m.history[key]...)
	if int64(len(h)) > m.opt.HistoryWindow {
		h = h[:m.opt.HistoryWindow]
	}
	m.history[key] = h
	return nil
}

func (m *Memory) RecentOutcomes(_ context.Context, streamID, betType string, n int64) ([]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.history[streamID+":"+betType]
	if n <= 0 || n > int64(len(h)) {
		n = int64(len(h))
	}
	out := make([]bool, n)
	copy(out, h[:n])
	return out, nil
}

func (m *Memory) StreamActivity(_ context.Context, streamID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.activity[streamID]
	if !ok || time.Since(s.at) > m.opt.ActivityTTL {
		return 0, ErrNotFound
	}
	return s.level, nil
}

func (m *Memory) SetStreamActivity(_ context.Context, streamID string, level float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity[streamID] = activitySample{level: level, at: time.Now()}
	return nil
}

func (m *Memory) DueExpiries(_ context.Context, now time.Time, limit int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []string
	for id, at := range m.expiries {
		if !at.After(now) {
			out = append(out, id)
			if int64(len(out)) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) RemoveExpiry(_ context.Context, betID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expiries, betID)
	return nil
}
