package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/adapters/db/memory"
	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/rs/zerolog"
)

type fakeBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	fail error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: map[string][]byte{}}
}

func (b *fakeBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets++
	if b.fail != nil {
		return nil, b.fail
	}
	v, ok := b.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (b *fakeBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.data[key] = value
	return nil
}

func (b *fakeBackend) Del(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

type countingRepo struct {
	domain.NameRepository
	mu    sync.Mutex
	reads int
}

func (r *countingRepo) GetName(ctx context.Context, name string) (domain.NameRecord, error) {
	r.mu.Lock()
	r.reads++
	r.mu.Unlock()
	return r.NameRepository.GetName(ctx, name)
}

const owner = "0x1111111111111111111111111111111111111111"

func TestGetNameServesFromCache(t *testing.T) {
	ctx := context.Background()
	store := &countingRepo{NameRepository: memory.NewNameRepository()}
	backend := newFakeBackend()
	repo := NewNameRepository(store, backend, time.Minute, zerolog.Nop())

	if err := repo.CreateName(ctx, domain.NameRecord{Name: "alice.uniperk.eth", Owner: owner, Texts: map[string]string{"k": "v"}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 3; i++ {
		rec, err := repo.GetName(ctx, "alice.uniperk.eth")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if rec.Text("k") != "v" {
			t.Fatalf("texts %+v", rec.Texts)
		}
	}
	if store.reads != 1 {
		t.Fatalf("store reads = %d, want 1", store.reads)
	}
}

func TestMergeTextsInvalidates(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	repo := NewNameRepository(memory.NewNameRepository(), backend, time.Minute, zerolog.Nop())

	_ = repo.CreateName(ctx, domain.NameRecord{Name: "bob.uniperk.eth", Owner: owner, Texts: map[string]string{domain.TextAgentAllowed: "false"}})
	if _, err := repo.GetName(ctx, "bob.uniperk.eth"); err != nil {
		t.Fatalf("warm: %v", err)
	}

	ok, err := repo.MergeTexts(ctx, "bob.uniperk.eth", owner, map[string]string{domain.TextAgentAllowed: "true"})
	if err != nil || !ok {
		t.Fatalf("merge: %v %v", ok, err)
	}
	if _, cached := backend.data[keyPrefix+"bob.uniperk.eth"]; cached {
		t.Fatalf("entry should be dropped after merge")
	}

	rec, err := repo.GetName(ctx, "bob.uniperk.eth")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Text(domain.TextAgentAllowed) != "true" {
		t.Fatalf("stale read %+v", rec.Texts)
	}
}

func TestBackendFailureFallsThrough(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.fail = errors.New("connection refused")
	repo := NewNameRepository(memory.NewNameRepository(), backend, time.Minute, zerolog.Nop())

	_ = repo.CreateName(ctx, domain.NameRecord{Name: "carol.uniperk.eth", Owner: owner})
	rec, err := repo.GetName(ctx, "carol.uniperk.eth")
	if err != nil {
		t.Fatalf("get with broken cache: %v", err)
	}
	if rec.Owner != owner {
		t.Fatalf("owner %q", rec.Owner)
	}

	if _, err := repo.GetName(ctx, "nobody.uniperk.eth"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
