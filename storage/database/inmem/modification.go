package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/modification"
)

type modificationRepository struct {
	db *DB
}

var _ modification.Repository = (*modificationRepository)(nil) // interface compliance check

func NewModificationRepository(db *DB) *modificationRepository {
	return &modificationRepository{db: db}
}

func (repo *modificationRepository) CreateModification(_ context.Context, mod modification.Modification, _ ...core.DBExecutor) (modification.Modification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	mod.ID = uuid.New().String()
	stored := copyModification(mod)
	repo.db.modifications[mod.ID] = &stored
	return mod, nil
}

func (repo *modificationRepository) QueryModifications(_ context.Context, filter modification.QueryFilter, _ ...core.DBExecutor) ([]modification.Modification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	mods := make([]modification.Modification, 0)
	for _, mod := range repo.db.modifications {
		if filter.UserID != "" && mod.UserID != filter.UserID {
			continue
		}
		if filter.State != nil && mod.State != *filter.State {
			continue
		}
		mods = append(mods, copyModification(*mod))
	}

	// most recent first
	sort.SliceStable(mods, func(i, j int) bool {
		if mods[i].CreatedAt.Equal(mods[j].CreatedAt) {
			return mods[i].ID < mods[j].ID
		}
		return mods[i].CreatedAt.After(mods[j].CreatedAt)
	})
	return mods, nil
}

// GetModification ignores filter.ForUpdate: InTx already serializes transactions.
func (repo *modificationRepository) GetModification(_ context.Context, filter modification.GetFilter, _ ...core.DBExecutor) (modification.Modification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if mod, ok := repo.db.modifications[filter.ID]; ok {
		return copyModification(*mod), nil
	}
	return modification.Modification{}, modification.ErrNotFound
}

func (repo *modificationRepository) UpdateModification(_ context.Context, mod modification.Modification, _ ...core.DBExecutor) (modification.Modification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.modifications[mod.ID]
	if !ok {
		return modification.Modification{}, modification.ErrNotFound
	}
	// content, user and creation time never change
	stored.State = mod.State
	stored.DecidedAt = mod.DecidedAt
	stored.DecidedBy = mod.DecidedBy
	stored.Note = mod.Note
	return copyModification(*stored), nil
}

func (repo *modificationRepository) CountModifications(_ context.Context, state modification.State, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, mod := range repo.db.modifications {
		if mod.State == state {
			cnt++
		}
	}
	return cnt, nil
}
