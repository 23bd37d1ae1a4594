package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/radieske/stream-wager-platform/internal/wager-service/catalog"
	"github.com/radieske/stream-wager-platform/internal/wager-service/dto"
	"github.com/radieske/stream-wager-platform/internal/wager-service/engine"
	"github.com/radieske/stream-wager-platform/internal/wager-service/model"
	"github.com/radieske/stream-wager-platform/internal/wager-service/store"
	"github.com/radieske/stream-wager-platform/pkg/contracts/events"
)

// Server expõe a API REST do engine de apostas. Identidade vem do header
// X-User-ID e capacidade administrativa do X-Admin (ambos injetados pelo
// gateway; auth é colaborador externo).
type Server struct {
	log *zap.Logger
	eng *engine.Engine
	cat *catalog.Catalog

	// rate limit de placement por usuário
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewServer(log *zap.Logger, eng *engine.Engine, cat *catalog.Catalog) *Server {
	return &Server{
		log:      log,
		eng:      eng,
		cat:      cat,
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(5),
		burst:    10,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/bets", s.placeBet)
	r.Get("/bets", s.listBets)
	r.Get("/bets/{id}", s.getBet)
	r.Post("/bets/{id}/cancel", s.cancelBet)
	r.Post("/bets/{id}/settle", s.settleBet)
	r.Get("/bet-types", s.types)
	r.Get("/balance/{streamId}", s.getBalance)
	r.Post("/balance/{streamId}/deposit", s.deposit)
	return r
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "X-User-ID required")
		return
	}
	if !s.allow(userID) {
		writeError(w, http.StatusTooManyRequests, "RateLimited", "too many bet placements")
		return
	}

	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadJSON", "malformed request body")
		return
	}
	if req.StreamID == "" || req.BetType == "" || req.StakeCents <= 0 {
		writeError(w, http.StatusBadRequest, "InvalidPayload", "streamId, betType and positive stakeCents required")
		return
	}

	bet, err := s.eng.PlaceBet(r.Context(), engine.PlaceRequest{
		UserID:     userID,
		StreamID:   req.StreamID,
		BetType:    req.BetType,
		StakeCents: req.StakeCents,
		Prediction: req.Prediction,
		Duration:   time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(bet)
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "X-User-ID required")
		return
	}
	streamID := r.URL.Query().Get("streamId")
	if streamID == "" {
		writeError(w, http.StatusBadRequest, "InvalidPayload", "streamId required")
		return
	}
	bets, err := s.eng.UserBets(r.Context(), userID, streamID, 50)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if bets == nil {
		bets = []*model.Bet{}
	}
	writeJSON(w, bets)
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	bet, err := s.eng.GetBet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	// visível só para o dono ou admin
	if bet.UserID != userID && !isAdmin(r) {
		writeError(w, http.StatusForbidden, "Forbidden", "not the bet owner")
		return
	}
	writeJSON(w, bet)
}

func (s *Server) cancelBet(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "X-User-ID required")
		return
	}
	bet, err := s.eng.CancelBet(r.Context(), chi.URLParam(r, "id"), userID, isAdmin(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, bet)
}

// settleBet é o gatilho administrativo/interno de settlement com payload de
// outcome explícito
func (s *Server) settleBet(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "Forbidden", "administrative capability required")
		return
	}
	var ev events.AnalyticsEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "BadJSON", "malformed outcome payload")
		return
	}
	betID := chi.URLParam(r, "id")
	bet, settled, err := s.eng.SettleBet(r.Context(), betID, &ev)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, dto.SettleResponse{BetID: betID, Settled: settled, Status: string(bet.Status)})
}

func (s *Server) types(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.cat.List())
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "X-User-ID required")
		return
	}
	bal, err := s.eng.Balance(r.Context(), userID, chi.URLParam(r, "streamId"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, toBalanceResponse(bal))
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "X-User-ID required")
		return
	}
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AmountCents <= 0 {
		writeError(w, http.StatusBadRequest, "InvalidPayload", "positive amountCents required")
		return
	}
	bal, err := s.eng.Deposit(r.Context(), userID, chi.URLParam(r, "streamId"), req.AmountCents)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, toBalanceResponse(bal))
}

func toBalanceResponse(b model.Balance) dto.BalanceResponse {
	return dto.BalanceResponse{
		StreamID:       b.StreamID,
		BalanceCents:   b.BalanceCents,
		ReservedCents:  b.ReservedCents,
		AvailableCents: b.AvailableCents(),
	}
}

// writeEngineError mapeia sentinelas do engine/store/catálogo para códigos
// estáveis da API
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidBetType):
		writeError(w, http.StatusBadRequest, "InvalidBetType", "unknown bet type")
	case errors.Is(err, catalog.ErrStakeOutOfRange):
		writeError(w, http.StatusBadRequest, "StakeOutOfRange", "stake outside the allowed range for this bet type")
	case errors.Is(err, catalog.ErrInvalidPrediction):
		writeError(w, http.StatusBadRequest, "InvalidPrediction", "prediction payload invalid for this bet type")
	case errors.Is(err, store.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "InsufficientFunds", "stake exceeds available balance")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", "bet not found")
	case errors.Is(err, engine.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", "not the bet owner")
	case errors.Is(err, engine.ErrNotCancellable):
		writeError(w, http.StatusConflict, "NotCancellable", "bet is not in a cancellable state")
	default:
		s.log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "internal error")
	}
}

// allow aplica o rate limit por usuário no placement
func (s *Server) allow(userID string) bool {
	s.mu.Lock()
	lim, ok := s.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(s.rps, s.burst)
		s.limiters[userID] = lim
	}
	s.mu.Unlock()
	return lim.Allow()
}

func isAdmin(r *http.Request) bool {
	return r.Header.Get("X-Admin") == "1"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Code: code, Message: msg})
}
