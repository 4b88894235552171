package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestRepository(t *testing.T) *NameRepository {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := RunMigrations(ctx, pool, zerolog.Nop()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return NewNameRepository(pool)
}

func TestRoundTripAndMerge(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	name := "t" + uuid.NewString()[:8] + ".uniperk.eth"
	owner := "0xAbCdEf0000000000000000000000000000000009"
	err := repo.CreateName(ctx, domain.NameRecord{
		Name:      name,
		Owner:     owner,
		Texts:     map[string]string{domain.TextAgentAllowed: "false", domain.TextAgentTokens: "ETH"},
		Addresses: map[string]string{domain.DefaultCoinType: owner},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CreateName(ctx, domain.NameRecord{Name: name, Owner: "0x0000000000000000000000000000000000000001"}); err != nil {
		t.Fatalf("duplicate create should be ignored: %v", err)
	}

	ok, err := repo.MergeTexts(ctx, name, "0xabcdef0000000000000000000000000000000009", map[string]string{domain.TextAgentAllowed: "true"})
	if err != nil || !ok {
		t.Fatalf("merge: ok=%v err=%v", ok, err)
	}

	rec, err := repo.GetName(ctx, name)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Owner != owner {
		t.Fatalf("owner overwritten: %q", rec.Owner)
	}
	if rec.Texts[domain.TextAgentAllowed] != "true" || rec.Texts[domain.TextAgentTokens] != "ETH" {
		t.Fatalf("unexpected texts %+v", rec.Texts)
	}

	if _, err := repo.GetName(ctx, "absent-"+name); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
