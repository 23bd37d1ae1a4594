package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayoutCents(t *testing.T) {
	// arredonda para o centavo mais próximo
	assert.Equal(t, int64(2_400), PayoutCents(1_000, 2.40))
	assert.Equal(t, int64(110), PayoutCents(100, 1.10))
	assert.Equal(t, int64(2_558), PayoutCents(1_111, 2.3025))
	assert.Equal(t, int64(0), PayoutCents(0, 2.40))
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []BetStatus{StatusWon, StatusLost, StatusCancelled, StatusExpired} {
		assert.True(t, s.Terminal(), string(s))
	}
	for _, s := range []BetStatus{StatusPending, StatusActive} {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestPotentialPayoutUsesFrozenOdds(t *testing.T) {
	b := Bet{StakeCents: 1_000, OddsAtPlacement: 2.40}
	assert.Equal(t, int64(2_400), b.PotentialPayoutCents())
}

func TestBalanceAvailable(t *testing.T) {
	b := Balance{BalanceCents: 10_000, ReservedCents: 1_500}
	assert.Equal(t, int64(8_500), b.AvailableCents())
}
