// Package postgres stores names in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func RunMigrations(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	dir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, dir)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		log.Info().Int64("version", res.Source.Version).Dur("took", res.Duration).Msg("migration applied")
	}
	return nil
}

type NameRepository struct {
	db *pgxpool.Pool
}

func NewNameRepository(db *pgxpool.Pool) *NameRepository {
	return &NameRepository{db: db}
}

func (r *NameRepository) GetName(ctx context.Context, name string) (domain.NameRecord, error) {
	var (
		rec              domain.NameRecord
		texts, addresses []byte
		id               int64
	)
	err := r.db.QueryRow(ctx, `SELECT id,name,owner,texts,addresses,contenthash,created_at,updated_at FROM names WHERE name=$1`, name).
		Scan(&id, &rec.Name, &rec.Owner, &texts, &addresses, &rec.Contenthash, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NameRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.NameRecord{}, err
	}
	rec.ID = uint(id)
	if rec.Texts, err = decodeMap(texts); err != nil {
		return domain.NameRecord{}, err
	}
	if rec.Addresses, err = decodeMap(addresses); err != nil {
		return domain.NameRecord{}, err
	}
	return rec, nil
}

func (r *NameRepository) GetNameByOwner(ctx context.Context, owner string) (string, error) {
	var name string
	err := r.db.QueryRow(ctx, `SELECT name FROM names WHERE lower(owner)=lower($1) ORDER BY id ASC LIMIT 1`, owner).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	return name, err
}

func (r *NameRepository) CreateName(ctx context.Context, value domain.NameRecord) error {
	texts, err := encodeMap(value.Texts)
	if err != nil {
		return err
	}
	addresses, err := encodeMap(value.Addresses)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO names(name,owner,texts,addresses,contenthash) VALUES($1,$2,$3::jsonb,$4::jsonb,$5) ON CONFLICT (name) DO NOTHING`,
		value.Name, value.Owner, texts, addresses, value.Contenthash)
	return err
}

func (r *NameRepository) MergeTexts(ctx context.Context, name, owner string, texts map[string]string) (bool, error) {
	patch, err := encodeMap(texts)
	if err != nil {
		return false, err
	}
	tag, err := r.db.Exec(ctx, `UPDATE names SET texts = texts || $3::jsonb, updated_at = now() WHERE name=$1 AND lower(owner)=lower($2)`,
		name, owner, patch)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NameRepository) ListNames(ctx context.Context, limit, offset int) ([]domain.NameSummary, error) {
	rows, err := r.db.Query(ctx, `SELECT name,owner FROM names ORDER BY id ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.NameSummary, 0)
	for rows.Next() {
		var s domain.NameSummary
		if err := rows.Scan(&s.Name, &s.Owner); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func encodeMap(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func decodeMap(b []byte) (map[string]string, error) {
	out := map[string]string{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
