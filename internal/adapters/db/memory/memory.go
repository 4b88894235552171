// Package memory is a process-local name store. Contents are lost on exit.
package memory

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/domain"
)

type NameRepository struct {
	mu     sync.RWMutex
	nextID uint
	byName map[string]*domain.NameRecord
	order  []string
}

func NewNameRepository() *NameRepository {
	return &NameRepository{byName: make(map[string]*domain.NameRecord)}
}

func (r *NameRepository) GetName(_ context.Context, name string) (domain.NameRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byName[name]
	if !ok {
		return domain.NameRecord{}, domain.ErrNotFound
	}
	return clone(*rec), nil
}

func (r *NameRepository) GetNameByOwner(_ context.Context, owner string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if strings.EqualFold(r.byName[name].Owner, owner) {
			return name, nil
		}
	}
	return "", domain.ErrNotFound
}

func (r *NameRepository) CreateName(_ context.Context, value domain.NameRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[value.Name]; exists {
		return nil
	}
	r.nextID++
	now := time.Now().UTC()
	rec := clone(value)
	rec.ID = r.nextID
	rec.CreatedAt = now
	rec.UpdatedAt = now
	r.byName[rec.Name] = &rec
	r.order = append(r.order, rec.Name)
	return nil
}

func (r *NameRepository) MergeTexts(_ context.Context, name, owner string, texts map[string]string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byName[name]
	if !ok || !strings.EqualFold(rec.Owner, owner) {
		return false, nil
	}
	maps.Copy(rec.Texts, texts)
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *NameRepository) ListNames(_ context.Context, limit, offset int) ([]domain.NameSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.NameSummary, 0)
	for i := offset; i < len(r.order) && len(out) < limit; i++ {
		rec := r.byName[r.order[i]]
		out = append(out, domain.NameSummary{Name: rec.Name, Owner: rec.Owner})
	}
	return out, nil
}

func clone(rec domain.NameRecord) domain.NameRecord {
	rec.Texts = maps.Clone(rec.Texts)
	if rec.Texts == nil {
		rec.Texts = map[string]string{}
	}
	rec.Addresses = maps.Clone(rec.Addresses)
	if rec.Addresses == nil {
		rec.Addresses = map[string]string{}
	}
	rec.Contenthash = append([]byte(nil), rec.Contenthash...)
	return rec
}
