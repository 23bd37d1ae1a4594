package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-platform/internal/wager-service/catalog"
	"github.com/radieske/stream-wager-platform/internal/wager-service/dto"
	"github.com/radieske/stream-wager-platform/internal/wager-service/engine"
	"github.com/radieske/stream-wager-platform/internal/wager-service/model"
	"github.com/radieske/stream-wager-platform/internal/wager-service/odds"
	"github.com/radieske/stream-wager-platform/internal/wager-service/settle"
	"github.com/radieske/stream-wager-platform/internal/wager-service/store"
)

func newTestServer(t *testing.T) (http.Handler, *store.Memory) {
	t.Helper()
	st := store.NewMemory(store.DefaultOptions())
	cat := catalog.Default()
	calc := odds.NewCalculator(zap.NewNop(), st, odds.DefaultParams())
	eng := engine.New(zap.NewNop(), st, cat, calc, settle.NewRegistry(), engine.DefaultConfig())
	_, err := st.Deposit(context.Background(), "user-1", "stream-1", 10_000)
	require.NoError(t, err)
	return NewServer(zap.NewNop(), eng, cat).Router(), st
}

func doJSON(t *testing.T, h http.Handler, method, path, userID string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if admin {
		req.Header.Set("X-Admin", "1")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func placeBody() dto.PlaceBetRequest {
	th := 25.0
	return dto.PlaceBetRequest{
		StreamID:   "stream-1",
		BetType:    model.TypeSpeedMilestone,
		StakeCents: 1_000,
		Prediction: model.Prediction{ThresholdKmh: &th, Direction: "above"},
	}
}

func TestPlaceBetEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/bets", "user-1", placeBody(), false)
	require.Equal(t, http.StatusCreated, rec.Code)

	var bet model.Bet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bet))
	assert.NotEmpty(t, bet.ID)
	assert.Equal(t, "user-1", bet.UserID)
	assert.Equal(t, model.StatusActive, bet.Status)
	assert.GreaterOrEqual(t, bet.OddsAtPlacement, 1.10)
}

func TestPlaceBetRequiresIdentity(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/bets", "", placeBody(), false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceBetErrorMapping(t *testing.T) {
	h, _ := newTestServer(t)

	body := placeBody()
	body.BetType = "coin_flip"
	rec := doJSON(t, h, http.MethodPost, "/bets", "user-1", body, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var er dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Equal(t, "InvalidBetType", er.Code)

	body = placeBody()
	body.StakeCents = 50_000
	rec = doJSON(t, h, http.MethodPost, "/bets", "user-1", body, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Equal(t, "StakeOutOfRange", er.Code)

	// stake dentro da faixa mas acima do saldo disponível
	body = placeBody()
	body.StakeCents = 10_000
	rec = doJSON(t, h, http.MethodPost, "/bets", "user-1", body, false)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, h, http.MethodPost, "/bets", "user-1", placeBody(), false)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Equal(t, "InsufficientFunds", er.Code)
}

func TestGetBetOwnership(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/bets", "user-1", placeBody(), false)
	require.Equal(t, http.StatusCreated, rec.Code)
	var bet model.Bet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bet))

	rec = doJSON(t, h, http.MethodGet, "/bets/"+bet.ID, "user-1", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/bets/"+bet.ID, "user-2", nil, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// admin enxerga qualquer aposta
	rec = doJSON(t, h, http.MethodGet, "/bets/"+bet.ID, "ops", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/bets/nope", "user-1", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelBetEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/bets", "user-1", placeBody(), false)
	require.Equal(t, http.StatusCreated, rec.Code)
	var bet model.Bet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bet))

	rec = doJSON(t, h, http.MethodPost, "/bets/"+bet.ID+"/cancel", "user-2", nil, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/bets/"+bet.ID+"/cancel", "user-1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled model.Bet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	// repetição: estado terminal
	rec = doJSON(t, h, http.MethodPost, "/bets/"+bet.ID+"/cancel", "user-1", nil, false)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSettleEndpointRequiresAdmin(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/bets", "user-1", placeBody(), false)
	require.Equal(t, http.StatusCreated, rec.Code)
	var bet model.Bet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bet))

	outcome := map[string]any{
		"stream_id": "stream-1",
		"vibrio": map[string]any{
			"tracks": []map[string]any{{"track_id": 1, "speed_kmh": 30.0}},
		},
	}

	rec = doJSON(t, h, http.MethodPost, "/bets/"+bet.ID+"/settle", "user-1", outcome, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/bets/"+bet.ID+"/settle", "ops", outcome, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.SettleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Settled)
	assert.Equal(t, string(model.StatusWon), resp.Status)

	// reenvio: idempotente
	rec = doJSON(t, h, http.MethodPost, "/bets/"+bet.ID+"/settle", "ops", outcome, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Settled)
}

func TestListBetsEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, h, http.MethodPost, "/bets", "user-1", placeBody(), false)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/bets?streamId=stream-1", "user-1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var bets []model.Bet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bets))
	assert.Len(t, bets, 3)

	// usuário sem apostas recebe lista vazia, não null
	rec = doJSON(t, h, http.MethodGet, "/bets?streamId=stream-1", "user-2", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/bets", "user-1", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalanceEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/balance/stream-1", "user-1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var bal dto.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, int64(10_000), bal.BalanceCents)
	assert.Equal(t, int64(10_000), bal.AvailableCents)

	rec = doJSON(t, h, http.MethodPost, "/balance/stream-1/deposit", "user-1",
		dto.DepositRequest{AmountCents: 5_000}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, int64(15_000), bal.BalanceCents)

	rec = doJSON(t, h, http.MethodPost, "/balance/stream-1/deposit", "user-1",
		dto.DepositRequest{AmountCents: -10}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBetTypesEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/bet-types", "", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []catalog.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 4)
}

func TestPlacementRateLimit(t *testing.T) {
	h, st := newTestServer(t)
	_, err := st.Deposit(context.Background(), "user-1", "stream-1", 1_000_000)
	require.NoError(t, err)

	limited := false
	body := placeBody()
	body.StakeCents = 100
	for i := 0; i < 30; i++ {
		rec := doJSON(t, h, http.MethodPost, "/bets", "user-1", body, false)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		require.Equal(t, http.StatusCreated, rec.Code, fmt.Sprintf("request %d", i))
	}
	assert.True(t, limited)
}
