package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/stream-wager-platform/internal/wager-service/model"
)

func newBet(id, user, stream string, status model.BetStatus) *model.Bet {
	now := time.Now().UTC()
	return &model.Bet{
		ID:              id,
		UserID:          user,
		StreamID:        stream,
		BetType:         model.TypeSpeedMilestone,
		StakeCents:      1_000,
		OddsAtPlacement: 2.4,
		Status:          status,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Minute),
	}
}

func TestReserveRequiresAvailableBalance(t *testing.T) {
	m := NewMemory(DefaultOptions())
	ctx := context.Background()

	err := m.Reserve(ctx, "u1", "s1", 100)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = m.Deposit(ctx, "u1", "s1", 1_000)
	require.NoError(t, err)
	require.NoError(t, m.Reserve(ctx, "u1", "s1", 800))

	// 200 disponíveis; reserva acima disso falha sem mutar o ledger
	err = m.Reserve(ctx, "u1", "s1", 300)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	bal, err := m.Balance(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), bal.BalanceCents)
	assert.Equal(t, int64(800), bal.ReservedCents)
	assert.Equal(t, int64(200), bal.AvailableCents())
}

func TestSettleFundsConservation(t *testing.T) {
	m := NewMemory(DefaultOptions())
	ctx := context.Background()

	_, err := m.Deposit(ctx, "u1", "s1", 10_000)
	require.NoError(t, err)
	require.NoError(t, m.Reserve(ctx, "u1", "s1", 1_000))

	// vitória: stake sai da reserva, payout entra no saldo
	require.NoError(t, m.SettleFunds(ctx, "u1", "s1", 1_000, 2_400))
	bal, _ := m.Balance(ctx, "u1", "s1")
	assert.Equal(t, int64(11_400), bal.BalanceCents)
	assert.Equal(t, int64(0), bal.ReservedCents)

	// derrota: stake é debitado
	require.NoError(t, m.Reserve(ctx, "u1", "s1", 1_000))
	require.NoError(t, m.SettleFunds(ctx, "u1", "s1", 1_000, 0))
	bal, _ = m.Balance(ctx, "u1", "s1")
	assert.Equal(t, int64(10_400), bal.BalanceCents)
	assert.Equal(t, int64(0), bal.ReservedCents)
}

func TestCASStatusSwapsExactlyOnce(t *testing.T) {
	m := NewMemory(DefaultOptions())
	ctx := context.Background()

	b := newBet("b1", "u1", "s1", model.StatusActive)
	require.NoError(t, m.CreateActiveBet(ctx, b))

	won := *b
	won.Status = model.StatusWon
	ok, err := m.CASStatus(ctx, &won, model.StatusActive)
	require.NoError(t, err)
	assert.True(t, ok)

	// segunda transição a partir de ACTIVE perde: status já mudou
	expired := *b
	expired.Status = model.StatusExpired
	ok, err = m.CASStatus(ctx, &expired, model.StatusActive)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := m.GetBet(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusWon, got.Status)

	_, err = m.CASStatus(ctx, newBet("ghost", "u1", "s1", model.StatusWon), model.StatusActive)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCASStatusRemovesFromActiveSetAndExpiries(t *testing.T) {
	m := NewMemory(DefaultOptions())
	ctx := context.Background()

	b := newBet("b1", "u1", "s1", model.StatusActive)
	b.ExpiresAt = time.Now().Add(-time.Second)
	require.NoError(t, m.CreateActiveBet(ctx, b))

	active, err := m.ActiveBets(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, active, 1)

	due, err := m.DueExpiries(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, due)

	won := *b
	won.Status = model.StatusWon
	ok, err := m.CASStatus(ctx, &won, model.StatusActive)
	require.NoError(t, err)
	require.True(t, ok)

	active, err = m.ActiveBets(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, active)

	due, err = m.DueExpiries(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestUserBetsMostRecentFirst(t *testing.T) {
	m := NewMemory(DefaultOptions())
	ctx := context.Background()

	for _, id := range []string{"b1", "b2", "b3"} {
		require.NoError(t, m.CreateActiveBet(ctx, newBet(id, "u1", "s1", model.StatusActive)))
	}
	require.NoError(t, m.CreateActiveBet(ctx, newBet("other", "u2", "s1", model.StatusActive)))

	bets, err := m.UserBets(ctx, "u1", "s1", 2)
	require.NoError(t, err)
	require.Len(t, bets, 2)
	assert.Equal(t, "b3", bets[0].ID)
	assert.Equal(t, "b2", bets[1].ID)
}

func TestOutcomeHistoryWindowTrim(t *testing.T) {
	opt := DefaultOptions()
	opt.HistoryWindow = 3
	m := NewMemory(opt)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.AppendOutcome(ctx, "s1", model.TypeSpeedMilestone, i%2 == 0))
	}
	hist, err := m.RecentOutcomes(ctx, "s1", model.TypeSpeedMilestone, 10)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	// mais recente primeiro: i=4 (win), i=3 (loss), i=2 (win)
	assert.Equal(t, []bool{true, false, true}, hist)
}

func TestStreamActivityExpires(t *testing.T) {
	opt := DefaultOptions()
	opt.ActivityTTL = 10 * time.Millisecond
	m := NewMemory(opt)
	ctx := context.Background()

	_, err := m.StreamActivity(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SetStreamActivity(ctx, "s1", 0.7))
	level, err := m.StreamActivity(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0.7, level)

	time.Sleep(20 * time.Millisecond)
	_, err = m.StreamActivity(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDueExpiriesOnlyPast(t *testing.T) {
	m := NewMemory(DefaultOptions())
	ctx := context.Background()

	past := newBet("past", "u1", "s1", model.StatusActive)
	past.ExpiresAt = time.Now().Add(-time.Minute)
	future := newBet("future", "u1", "s1", model.StatusActive)
	future.ExpiresAt = time.Now().Add(time.Hour)
	require.NoError(t, m.CreateActiveBet(ctx, past))
	require.NoError(t, m.CreateActiveBet(ctx, future))

	due, err := m.DueExpiries(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"past"}, due)

	require.NoError(t, m.RemoveExpiry(ctx, "past"))
	due, err = m.DueExpiries(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}
