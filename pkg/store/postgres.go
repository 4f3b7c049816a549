package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/checklinehq/checkline/pkg/script"
)

var _ Recorder = (*Postgres)(nil)

// Postgres is the pgxpool-backed Recorder. All methods are safe for
// concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database at dsn, pings it, and runs Migrate.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) CreateUser(ctx context.Context, phone string) (UserRecord, error) {
	const q = `
		INSERT INTO users (phone_number)
		VALUES ($1)
		ON CONFLICT (phone_number) DO UPDATE SET phone_number = EXCLUDED.phone_number
		RETURNING id, phone_number, created_at`

	var u UserRecord
	err := p.pool.QueryRow(ctx, q, phone).Scan(&u.ID, &u.PhoneNumber, &u.CreatedAt)
	if err != nil {
		return UserRecord{}, fmt.Errorf("store: create user: %w", err)
	}
	return u, nil
}

func (p *Postgres) GetUserByPhone(ctx context.Context, phone string) (UserRecord, bool, error) {
	const q = `SELECT id, phone_number, created_at FROM users WHERE phone_number = $1`

	var u UserRecord
	err := p.pool.QueryRow(ctx, q, phone).Scan(&u.ID, &u.PhoneNumber, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, false, nil
	}
	if err != nil {
		return UserRecord{}, false, fmt.Errorf("store: get user by phone: %w", err)
	}
	return u, true, nil
}

func (p *Postgres) CreateCall(ctx context.Context, userID string, callType script.CallType, status string) (CallRecord, error) {
	const q = `
		INSERT INTO calls (user_id, call_type, status)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, COALESCE(call_sid, ''), call_type, status, started_at, ended_at, COALESCE(duration_seconds, 0)`

	var c CallRecord
	err := p.pool.QueryRow(ctx, q, userID, string(callType), status).
		Scan(&c.ID, &c.UserID, &c.CallSID, &c.CallType, &c.Status, &c.StartedAt, &c.EndedAt, &c.DurationSeconds)
	if err != nil {
		return CallRecord{}, fmt.Errorf("store: create call: %w", err)
	}
	return c, nil
}

func (p *Postgres) UpdateCall(ctx context.Context, callID string, upd CallUpdate) (CallRecord, error) {
	const q = `
		UPDATE calls SET
			status   = COALESCE($2, status),
			ended_at = COALESCE($3, ended_at),
			call_sid = COALESCE($4, call_sid),
			duration_seconds = CASE
				WHEN $3::timestamptz IS NOT NULL THEN EXTRACT(EPOCH FROM ($3::timestamptz - started_at))::int
				ELSE duration_seconds
			END
		WHERE id = $1
		RETURNING id, user_id, COALESCE(call_sid, ''), call_type, status, started_at, ended_at, COALESCE(duration_seconds, 0)`

	var c CallRecord
	err := p.pool.QueryRow(ctx, q, callID, upd.Status, upd.EndedAt, upd.CallSID).
		Scan(&c.ID, &c.UserID, &c.CallSID, &c.CallType, &c.Status, &c.StartedAt, &c.EndedAt, &c.DurationSeconds)
	if err != nil {
		return CallRecord{}, fmt.Errorf("store: update call: %w", err)
	}
	return c, nil
}

func (p *Postgres) CreateTranscription(ctx context.Context, callID, content string) (TranscriptionRecord, error) {
	const q = `
		INSERT INTO transcriptions (call_id, content)
		VALUES ($1, $2)
		RETURNING id, call_id, content, created_at`

	var t TranscriptionRecord
	err := p.pool.QueryRow(ctx, q, callID, content).Scan(&t.ID, &t.CallID, &t.Content, &t.CreatedAt)
	if err != nil {
		return TranscriptionRecord{}, fmt.Errorf("store: create transcription: %w", err)
	}
	return t, nil
}

func (p *Postgres) GetTranscriptionByCallID(ctx context.Context, callID string) (TranscriptionRecord, bool, error) {
	const q = `
		SELECT id, call_id, content, created_at
		FROM transcriptions
		WHERE call_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var t TranscriptionRecord
	err := p.pool.QueryRow(ctx, q, callID).Scan(&t.ID, &t.CallID, &t.Content, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TranscriptionRecord{}, false, nil
	}
	if err != nil {
		return TranscriptionRecord{}, false, fmt.Errorf("store: get transcription: %w", err)
	}
	return t, true, nil
}
