package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/stream-wager-platform/internal/wager-service/model"
)

// Redis implementa o Outcome Store sobre go-redis. As seções críticas
// (reserva de saldo, transição de status, movimentação de ledger) rodam como
// scripts Lua para garantir atomicidade no servidor — nunca get-then-set.
type Redis struct {
	rdb *redis.Client
	opt Options
}

func NewRedis(rdb *redis.Client, opt Options) *Redis {
	return &Redis{rdb: rdb, opt: opt}
}

func betKey(id string) string                  { return "bet:" + id }
func balanceKey(user, stream string) string    { return "balance:" + user + ":" + stream }
func reservedKey(user, stream string) string   { return "reserved:" + user + ":" + stream }
func activeKey(stream string) string           { return "bets:active:" + stream }
func userBetsKey(user, stream string) string   { return "bets:user:" + user + ":" + stream }
func streamBetsKey(stream string) string       { return "bets:stream:" + stream }
func historyKey(stream, betType string) string { return "history:" + stream + ":" + betType }
func activityKey(stream string) string         { return "activity:" + stream }

const expiryKey = "bets:expiry"

// reserveScript incrementa a reserva somente se houver saldo disponível.
// Retorna 1 em sucesso, 0 quando insuficiente.
var reserveScript = redis.NewScript(`
local bal = tonumber(redis.call('GET', KEYS[1]) or '0')
local res = tonumber(redis.call('GET', KEYS[2]) or '0')
local stake = tonumber(ARGV[1])
if bal - res < stake then
  return 0
end
redis.call('INCRBY', KEYS[2], stake)
redis.call('EXPIRE', KEYS[1], ARGV[2])
redis.call('EXPIRE', KEYS[2], ARGV[2])
return 1
`)

// casScript troca o JSON da aposta somente se o status armazenado ainda for o
// esperado, removendo índice ativo e agendamento de expiração junto.
// Retorna 1 (trocou), 0 (perdeu a corrida) ou -1 (aposta inexistente).
var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  return -1
end
local bet = cjson.decode(cur)
if bet.status ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'EX', tonumber(ARGV[4]))
redis.call('SREM', KEYS[2], ARGV[3])
redis.call('ZREM', KEYS[3], ARGV[3])
return 1
`)

// settleScript libera a reserva e aplica o resultado financeiro numa única
// operação: vitória credita payout−stake, derrota debita o stake.
var settleScript = redis.NewScript(`
local stake = tonumber(ARGV[1])
local payout = tonumber(ARGV[2])
redis.call('DECRBY', KEYS[2], stake)
if payout > 0 then
  redis.call('INCRBY', KEYS[1], payout - stake)
else
  redis.call('DECRBY', KEYS[1], stake)
end
redis.call('EXPIRE', KEYS[1], ARGV[3])
redis.call('EXPIRE', KEYS[2], ARGV[3])
return 1
`)

func (r *Redis) CreateActiveBet(ctx context.Context, b *model.Bet) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal bet: %w", err)
	}
	score := float64(b.CreatedAt.UnixMilli())

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, betKey(b.ID), raw, r.opt.BetRetention)
	pipe.SAdd(ctx, activeKey(b.StreamID), b.ID)
	pipe.ZAdd(ctx, userBetsKey(b.UserID, b.StreamID), redis.Z{Score: score, Member: b.ID})
	pipe.ZRemRangeByRank(ctx, userBetsKey(b.UserID, b.StreamID), 0, -(r.opt.UserIndexLimit + 1))
	pipe.ZAdd(ctx, streamBetsKey(b.StreamID), redis.Z{Score: score, Member: b.ID})
	pipe.ZRemRangeByRank(ctx, streamBetsKey(b.StreamID), 0, -(r.opt.UserIndexLimit + 1))
	pipe.ZAdd(ctx, expiryKey, redis.Z{Score: float64(b.ExpiresAt.UnixMilli()), Member: b.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist bet: %w", err)
	}
	return nil
}

func (r *Redis) GetBet(ctx context.Context, id string) (*model.Bet, error) {
	raw, err := r.rdb.Get(ctx, betKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bet: %w", err)
	}
	var b model.Bet
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("unmarshal bet %s: %w", id, err)
	}
	return &b, nil
}

func (r *Redis) CASStatus(ctx context.Context, b *model.Bet, from model.BetStatus) (bool, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("marshal bet: %w", err)
	}
	res, err := casScript.Run(ctx, r.rdb,
		[]string{betKey(b.ID), activeKey(b.StreamID), expiryKey},
		string(from), raw, b.ID, int64(r.opt.BetRetention.Seconds()),
	).Int()
	if err != nil {
		return false, fmt.Errorf("cas status: %w", err)
	}
	if res == -1 {
		return false, ErrNotFound
	}
	return res == 1, nil
}

func (r *Redis) ActiveBets(ctx context.Context, streamID string) ([]*model.Bet, error) {
	ids, err := r.rdb.SMembers(ctx, activeKey(streamID)).Result()
	if err != nil {
		return nil, fmt.Errorf("active set: %w", err)
	}
	return r.loadBets(ctx, ids, true)
}

func (r *Redis) UserBets(ctx context.Context, userID, streamID string, limit int64) ([]*model.Bet, error) {
	if limit <= 0 {
		limit = r.opt.UserIndexLimit
	}
	ids, err := r.rdb.ZRevRange(ctx, userBetsKey(userID, streamID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("user bets: %w", err)
	}
	return r.loadBets(ctx, ids, false)
}

// loadBets resolve ids em apostas via MGET, ignorando registros já expirados
// do Redis. Com onlyActive, descarta apostas que deixaram de ser ACTIVE entre
// a leitura do índice e o MGET.
func (r *Redis) loadBets(ctx context.Context, ids []string, onlyActive bool) ([]*model.Bet, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = betKey(id)
	}
	rows, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget bets: %w", err)
	}
	out := make([]*model.Bet, 0, len(rows))
	for _, row := range rows {
		s, ok := row.(string)
		if !ok {
			continue
		}
		var b model.Bet
		if err := json.Unmarshal([]byte(s), &b); err != nil {
			continue
		}
		if onlyActive && b.Status != model.StatusActive {
			continue
		}
		out = append(out, &b)
	}
	return out, nil
}

func (r *Redis) Balance(ctx context.Context, userID, streamID string) (model.Balance, error) {
	rows, err := r.rdb.MGet(ctx, balanceKey(userID, streamID), reservedKey(userID, streamID)).Result()
	if err != nil {
		return model.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	b := model.Balance{UserID: userID, StreamID: streamID}
	b.BalanceCents = parseCents(rows[0])
	b.ReservedCents = parseCents(rows[1])
	return b, nil
}

func parseCents(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func (r *Redis) Deposit(ctx context.Context, userID, streamID string, amountCents int64) (model.Balance, error) {
	pipe := r.rdb.TxPipeline()
	incr := pipe.IncrBy(ctx, balanceKey(userID, streamID), amountCents)
	pipe.Expire(ctx, balanceKey(userID, streamID), r.opt.BalanceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.Balance{}, fmt.Errorf("deposit: %w", err)
	}
	res, err := r.rdb.Get(ctx, reservedKey(userID, streamID)).Result()
	if err != nil && err != redis.Nil {
		return model.Balance{}, fmt.Errorf("deposit reserved: %w", err)
	}
	reserved, _ := strconv.ParseInt(res, 10, 64)
	return model.Balance{
		UserID: userID, StreamID: streamID,
		BalanceCents: incr.Val(), ReservedCents: reserved,
	}, nil
}

func (r *Redis) Reserve(ctx context.Context, userID, streamID string, stakeCents int64) error {
	ok, err := reserveScript.Run(ctx, r.rdb,
		[]string{balanceKey(userID, streamID), reservedKey(userID, streamID)},
		stakeCents, int64(r.opt.BalanceTTL.Seconds()),
	).Int()
	if err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	if ok == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (r *Redis) ReleaseReservation(ctx context.Context, userID, streamID string, stakeCents int64) error {
	pipe := r.rdb.TxPipeline()
	pipe.DecrBy(ctx, reservedKey(userID, streamID), stakeCents)
	pipe.Expire(ctx, reservedKey(userID, streamID), r.opt.BalanceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

func (r *Redis) SettleFunds(ctx context.Context, userID, streamID string, stakeCents, payoutCents int64) error {
	_, err := settleScript.Run(ctx, r.rdb,
		[]string{balanceKey(userID, streamID), reservedKey(userID, streamID)},
		stakeCents, payoutCents, int64(r.opt.BalanceTTL.Seconds()),
	).Result()
	if err != nil {
		return fmt.Errorf("settle funds: %w", err)
	}
	return nil
}

func (r *Redis) AppendOutcome(ctx context.Context, streamID, betType string, won bool) error {
	v := "0"
	if won {
		v = "1"
	}
	key := historyKey(streamID, betType)
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, key, v)
	pipe.LTrim(ctx, key, 0, r.opt.HistoryWindow-1)
	pipe.Expire(ctx, key, r.opt.BetRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

func (r *Redis) RecentOutcomes(ctx context.Context, streamID, betType string, n int64) ([]bool, error) {
	if n <= 0 || n > r.opt.HistoryWindow {
		n = r.opt.HistoryWindow
	}
	rows, err := r.rdb.LRange(ctx, historyKey(streamID, betType), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("recent outcomes: %w", err)
	}
	out := make([]bool, len(rows))
	for i, row := range rows {
		out[i] = row == "1"
	}
	return out, nil
}

func (r *Redis) StreamActivity(ctx context.Context, streamID string) (float64, error) {
	s, err := r.rdb.Get(ctx, activityKey(streamID)).Result()
	if err == redis.Nil {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("stream activity: %w", err)
	}
	level, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse activity: %w", err)
	}
	return level, nil
}

func (r *Redis) SetStreamActivity(ctx context.Context, streamID string, level float64) error {
	return r.rdb.Set(ctx, activityKey(streamID),
		strconv.FormatFloat(level, 'f', -1, 64), r.opt.ActivityTTL).Err()
}

func (r *Redis) DueExpiries(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := r.rdb.ZRangeByScore(ctx, expiryKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("due expiries: %w", err)
	}
	return ids, nil
}

func (r *Redis) RemoveExpiry(ctx context.Context, betID string) error {
	return r.rdb.ZRem(ctx, expiryKey, betID).Err()
}
