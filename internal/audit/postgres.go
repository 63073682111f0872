// Package audit records a fire-and-forget trail of every Stream Metadata
// Endpoint mint/refresh call, for traffic analytics. It is never on the read
// path of a request: Record launches its own goroutine and swallows errors
// (logged at warn) rather than propagate them to the caller.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Store writes MintAudit rows to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore opens a pooled connection to databaseURL and verifies it with a
// ping before returning.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Mint is one recorded Stream Metadata Endpoint call.
type Mint struct {
	ID          string
	TrackID     string
	ArtistID    string
	Bitrates    []int32
	PlaylistTTL time.Duration
	IssuedAt    time.Time
}

// Record inserts m asynchronously. It never blocks or returns an error to
// the caller; failures are logged at warn.
func (s *Store) Record(m Mint) {
	if s == nil {
		return
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.IssuedAt.IsZero() {
		m.IssuedAt = time.Now().UTC()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := s.pool.Exec(ctx,
			`INSERT INTO mint_audit (id, track_id, artist_id, bitrates, playlist_ttl_seconds, issued_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.TrackID, m.ArtistID, m.Bitrates, int(m.PlaylistTTL.Seconds()), m.IssuedAt,
		)
		if err != nil {
			log.Warn().Err(err).Str("track_id", m.TrackID).Msg("failed to record mint audit row")
		}
	}()
}
