package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chronodb/metasrv/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const createPeersTable = `
	CREATE TABLE IF NOT EXISTS meta_peers (
		cluster_id BIGINT      NOT NULL,
		peer_id    BIGINT      NOT NULL,
		addr       TEXT        NOT NULL,
		first_seen TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (cluster_id, peer_id)
	)
`

// PostgresDirectory implements Directory for PostgreSQL
type PostgresDirectory struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresDirectory connects to PostgreSQL and ensures the schema exists
func NewPostgresDirectory(
	ctx context.Context,
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresDirectory, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createPeersTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create meta_peers table: %w", err)
	}

	return &PostgresDirectory{
		pool:   pool,
		logger: logger,
	}, nil
}

// Register implements Directory. The row is only rewritten when the address
// changed; xmax = 0 identifies a fresh insert.
func (d *PostgresDirectory) Register(ctx context.Context, ns model.Namespace, peer model.Peer) (bool, error) {
	query := `
		INSERT INTO meta_peers (cluster_id, peer_id, addr, first_seen, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (cluster_id, peer_id) DO UPDATE
		SET addr = EXCLUDED.addr, updated_at = EXCLUDED.updated_at
		WHERE meta_peers.addr <> EXCLUDED.addr
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err := d.pool.QueryRow(ctx, query,
		int64(ns),
		int64(peer.ID),
		peer.Addr,
		time.Now().UTC(),
	).Scan(&inserted)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to register peer: %w", err)
	}

	if inserted {
		d.logger.Info("Registered new peer",
			zap.Uint64("namespace", uint64(ns)),
			zap.Uint64("peer_id", uint64(peer.ID)),
			zap.String("addr", peer.Addr))
	}
	return inserted, nil
}

// Get implements Directory
func (d *PostgresDirectory) Get(ctx context.Context, ns model.Namespace, id model.PeerID) (*model.PeerRecord, error) {
	query := `
		SELECT cluster_id, peer_id, addr, first_seen, updated_at
		FROM meta_peers
		WHERE cluster_id = $1 AND peer_id = $2
	`

	rec, err := scanRecord(d.pool.QueryRow(ctx, query, int64(ns), int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get peer: %w", err)
	}
	return rec, nil
}

// List implements Directory
func (d *PostgresDirectory) List(ctx context.Context, ns model.Namespace) ([]*model.PeerRecord, error) {
	query := `
		SELECT cluster_id, peer_id, addr, first_seen, updated_at
		FROM meta_peers
		WHERE cluster_id = $1
		ORDER BY peer_id
	`

	rows, err := d.pool.Query(ctx, query, int64(ns))
	if err != nil {
		return nil, fmt.Errorf("failed to list peers: %w", err)
	}
	defer rows.Close()

	var records []*model.PeerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan peer: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func scanRecord(row pgx.Row) (*model.PeerRecord, error) {
	var (
		ns, id int64
		rec    model.PeerRecord
	)
	if err := row.Scan(&ns, &id, &rec.Peer.Addr, &rec.FirstSeen, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Namespace = model.Namespace(ns)
	rec.Peer.ID = model.PeerID(id)
	return &rec, nil
}

// Ping implements Directory
func (d *PostgresDirectory) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Close implements Directory
func (d *PostgresDirectory) Close() {
	d.pool.Close()
}
