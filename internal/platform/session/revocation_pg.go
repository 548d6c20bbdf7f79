package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGStore keeps revoked sessions in the revoked_sessions table so that a
// logout holds across every portal instance.
type PGStore struct {
	db queryable
}

func NewPGStore(db queryable) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO revoked_sessions (jti, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (jti) DO NOTHING`,
		jti, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *PGStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_sessions WHERE jti = $1)`, jti,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return revoked, nil
}

// Purge deletes entries whose sessions have expired and returns how many
// were removed.
func (s *PGStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM revoked_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge revoked sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunPurge calls Purge every interval until ctx is done.
func (s *PGStore) RunPurge(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			n, err := s.Purge(ctx, t)
			if err != nil {
				logger.Warn().Err(err).Msg("revocation purge failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("removed", n).Msg("purged expired revocations")
			}
		}
	}
}
