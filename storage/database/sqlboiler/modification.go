package boiledrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/modification"
)

const modificationTable = `"modification"`

// modificationRow is a row of the "modification" table.
type modificationRow struct {
	ID        string      `boil:"id"`
	UserID    string      `boil:"user_id"`
	Content   types.JSON  `boil:"content"`
	State     int16       `boil:"state"`
	CreatedAt time.Time   `boil:"created_at"`
	DecidedAt null.Time   `boil:"decided_at"`
	DecidedBy null.String `boil:"decided_by"`
	Note      string      `boil:"note"`
}

var modificationColumns = []string{"id", "user_id", "content", "state", "created_at", "decided_at", "decided_by", "note"}

type modificationRepository struct {
	baseRepository
}

var _ modification.Repository = (*modificationRepository)(nil) // interface compliance check

func NewModificationRepository(exec core.DBExecutor) *modificationRepository {
	return &modificationRepository{baseRepository{exec: exec}}
}

func (repo modificationRepository) boil(mod modification.Modification) (*modificationRow, error) {
	content, err := json.Marshal(mod.Content)
	if err != nil {
		return nil, errors.Wrap(err, "encoding content")
	}
	return &modificationRow{
		ID:        mod.ID,
		UserID:    mod.UserID,
		Content:   content,
		State:     int16(mod.State),
		CreatedAt: mod.CreatedAt.UTC(),
		DecidedAt: null.NewTime(mod.DecidedAt.UTC(), !mod.DecidedAt.IsZero()),
		DecidedBy: null.NewString(mod.DecidedBy, mod.DecidedBy != ""),
		Note:      mod.Note,
	}, nil
}

func (repo modificationRepository) unboil(row *modificationRow) (modification.Modification, error) {
	mod := modification.Modification{
		ID:        row.ID,
		UserID:    row.UserID,
		State:     modification.State(row.State),
		CreatedAt: row.CreatedAt.UTC(),
		DecidedBy: row.DecidedBy.String,
		Note:      row.Note,
	}
	if row.DecidedAt.Valid {
		mod.DecidedAt = row.DecidedAt.Time.UTC()
	}
	if err := json.Unmarshal(row.Content, &mod.Content); err != nil {
		return modification.Modification{}, errors.Wrapf(err, "decoding content of modification %s", row.ID)
	}
	mod.Content = mod.Content.Canonical()
	return mod, nil
}

func (repo modificationRepository) values(row *modificationRow) []interface{} {
	return []interface{}{row.ID, row.UserID, row.Content, row.State, row.CreatedAt, row.DecidedAt, row.DecidedBy, row.Note}
}

func (repo modificationRepository) CreateModification(ctx context.Context, mod modification.Modification, exec ...core.DBExecutor) (modification.Modification, error) {
	mod.ID = uuid.New().String()
	row, err := repo.boil(mod)
	if err != nil {
		return modification.Modification{}, err
	}
	if err = insert(ctx, repo.getExec(exec), modificationTable, modificationColumns, repo.values(row)); err != nil {
		return modification.Modification{}, errors.Wrap(err, "inserting modification")
	}
	return repo.unboil(row)
}

func (repo modificationRepository) QueryModifications(ctx context.Context, filter modification.QueryFilter, exec ...core.DBExecutor) ([]modification.Modification, error) {
	mods := []qm.QueryMod{qm.Select("*"), qm.From(modificationTable)}
	if filter.UserID != "" {
		if _, err := uuid.Parse(filter.UserID); err != nil {
			return []modification.Modification{}, nil
		}
		mods = append(mods, qm.Where("user_id = ?", filter.UserID))
	}
	if filter.State != nil {
		mods = append(mods, qm.Where("state = ?", int16(*filter.State)))
	}
	mods = append(mods, qm.OrderBy("created_at DESC"))

	var rows []*modificationRow
	if err := newQuery(mods...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying modifications")
	}

	result := make([]modification.Modification, 0, len(rows))
	for _, row := range rows {
		mod, err := repo.unboil(row)
		if err != nil {
			return nil, err
		}
		result = append(result, mod)
	}
	return result, nil
}

func (repo modificationRepository) GetModification(ctx context.Context, filter modification.GetFilter, exec ...core.DBExecutor) (modification.Modification, error) {
	if _, err := uuid.Parse(filter.ID); err != nil {
		return modification.Modification{}, modification.ErrNotFound
	}

	mods := []qm.QueryMod{qm.Select("*"), qm.From(modificationTable), qm.Where("id = ?", filter.ID)}
	if filter.ForUpdate {
		mods = append(mods, qm.For("UPDATE"))
	}

	row := new(modificationRow)
	if err := newQuery(mods...).Bind(ctx, repo.getExec(exec), row); err != nil {
		return modification.Modification{}, trapNoRowsErr(err, modification.ErrNotFound, "finding modification")
	}
	return repo.unboil(row)
}

func (repo modificationRepository) UpdateModification(ctx context.Context, mod modification.Modification, exec ...core.DBExecutor) (modification.Modification, error) {
	row, err := repo.boil(mod)
	if err != nil {
		return modification.Modification{}, err
	}

	// content, user and creation time never change
	cols := map[string]interface{}{
		"state":      row.State,
		"decided_at": row.DecidedAt,
		"decided_by": row.DecidedBy,
		"note":       row.Note,
	}
	n, err := update(ctx, repo.getExec(exec), cols, qm.From(modificationTable), qm.Where("id = ?", mod.ID))
	if err != nil {
		return modification.Modification{}, errors.Wrap(err, "updating modification")
	}
	if n == 0 {
		return modification.Modification{}, modification.ErrNotFound
	}
	return mod, nil
}

func (repo modificationRepository) CountModifications(ctx context.Context, state modification.State, exec ...core.DBExecutor) (int, error) {
	cnt, err := count(ctx, repo.getExec(exec), qm.From(modificationTable), qm.Where("state = ?", int16(state)))
	return cnt, errors.Wrap(err, "counting modifications")
}
