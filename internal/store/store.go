// Package store persists digests and the tracked portfolio in PostgreSQL.
//
// Digests are written once per pulse run, keyed (client_id, period_end), with
// the full digest JSON plus queryable metadata columns. The previous period's
// digest is the sole source of baseline snapshots for delta computation.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark/tidemark/internal/compliance"
)

// Sentinel errors, checked with errors.Is().
var (
	// ErrDigestNotFound indicates no digest exists for the requested key.
	ErrDigestNotFound = errors.New("digest not found")
)

// Store provides digest and portfolio persistence.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store over an established connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// SaveDigest persists a digest, replacing any previous digest for the same
// (client, period_end). Replacement keeps re-runs of a period idempotent.
func (s *Store) SaveDigest(ctx context.Context, d compliance.Digest) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding digest: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO digests (id, client_id, period_start, period_end, requires_action, status, digest)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (client_id, period_end) DO UPDATE SET
			id = EXCLUDED.id,
			period_start = EXCLUDED.period_start,
			requires_action = EXCLUDED.requires_action,
			status = EXCLUDED.status,
			digest = EXCLUDED.digest,
			created_at = now()`,
		d.ID, d.ClientID, d.PeriodStart, d.PeriodEnd, d.RequiresAction, string(d.Status), payload)
	if err != nil {
		return fmt.Errorf("saving digest: %w", err)
	}

	s.logger.Info("digest saved",
		"client_id", d.ClientID, "period_end", d.PeriodEnd, "status", d.Status)
	return nil
}

// GetDigest loads the digest for an exact (client, period_end) key.
func (s *Store) GetDigest(ctx context.Context, clientID string, periodEnd time.Time) (*compliance.Digest, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT digest FROM digests
		WHERE client_id = $1 AND period_end = $2`,
		clientID, periodEnd)
	return scanDigest(row)
}

// LatestBefore returns the most recent digest for the client whose period
// ended strictly before t. Returns ErrDigestNotFound on the first run for a
// client, which is a valid state, not a failure.
func (s *Store) LatestBefore(ctx context.Context, clientID string, t time.Time) (*compliance.Digest, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT digest FROM digests
		WHERE client_id = $1 AND period_end < $2
		ORDER BY period_end DESC
		LIMIT 1`,
		clientID, t)
	return scanDigest(row)
}

// DigestMeta is the queryable summary row for digest listings.
type DigestMeta struct {
	ClientID       string                  `json:"client_id"`
	PeriodStart    time.Time               `json:"period_start"`
	PeriodEnd      time.Time               `json:"period_end"`
	RequiresAction bool                    `json:"requires_action"`
	Status         compliance.DigestStatus `json:"status"`
	CreatedAt      time.Time               `json:"created_at"`
}

// ListDigests returns digest metadata for a client, newest first.
func (s *Store) ListDigests(ctx context.Context, clientID string, limit int32) ([]DigestMeta, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT client_id, period_start, period_end, requires_action, status, created_at
		FROM digests
		WHERE client_id = $1
		ORDER BY period_end DESC
		LIMIT $2`,
		clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing digests: %w", err)
	}
	defer rows.Close()

	var metas []DigestMeta
	for rows.Next() {
		var m DigestMeta
		if err := rows.Scan(&m.ClientID, &m.PeriodStart, &m.PeriodEnd,
			&m.RequiresAction, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning digest row: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading digest rows: %w", err)
	}
	return metas, nil
}

func scanDigest(row pgx.Row) (*compliance.Digest, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDigestNotFound
		}
		return nil, fmt.Errorf("loading digest: %w", err)
	}

	var d compliance.Digest
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("decoding digest: %w", err)
	}
	return &d, nil
}
