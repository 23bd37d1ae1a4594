package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/radieske/stream-wager-platform/internal/wager-service/model"
)

// Postgres é o repositório de auditoria: apostas terminais e movimentações de
// ledger são arquivadas de forma write-behind. Falhas aqui são logadas pelo
// engine e nunca bloqueiam settlement — o Outcome Store é a fonte de verdade
// operacional, o Postgres é trilha de auditoria e histórico de longo prazo.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// ArchiveBet grava (ou atualiza) o registro da aposta na tabela bets
func (p *Postgres) ArchiveBet(ctx context.Context, b *model.Bet) error {
	pred, err := json.Marshal(b.Prediction)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO bets (id, user_id, stream_id, bet_type, stake_cents, odd_value,
			prediction, status, payout_cents, created_at, expires_at, settled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			payout_cents = EXCLUDED.payout_cents,
			settled_at = EXCLUDED.settled_at`,
		b.ID, b.UserID, b.StreamID, b.BetType, b.StakeCents, b.OddsAtPlacement,
		pred, string(b.Status), b.PayoutCents, b.CreatedAt, b.ExpiresAt, b.SettledAt,
	)
	return err
}

// RecordLedger registra a movimentação financeira associada à aposta
// operation: RESERVE | CREDIT | DEBIT | REFUND
func (p *Postgres) RecordLedger(ctx context.Context, b *model.Bet, operation string, amountCents int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wager_ledger (bet_id, user_id, stream_id, operation_type, amount_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,NOW())`,
		b.ID, b.UserID, b.StreamID, operation, amountCents,
	)
	return err
}
