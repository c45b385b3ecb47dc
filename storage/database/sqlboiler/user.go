package boiledrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/user"
)

const userTable = `"user"`

// userRow is a row of the "user" table.
type userRow struct {
	ID           string            `boil:"id"`
	FirstName    string            `boil:"first_name"`
	LastName     string            `boil:"last_name"`
	Email        string            `boil:"email"`
	Phone        string            `boil:"phone"`
	Faculty      string            `boil:"faculty"`
	Student      null.String       `boil:"student"`
	IsActive     bool              `boil:"is_active"`
	Roles        types.StringArray `boil:"roles"`
	PasswordHash null.Bytes        `boil:"password_hash"`
	CreatedAt    time.Time         `boil:"created_at"`
	UpdatedAt    time.Time         `boil:"updated_at"`
	LastLogin    null.Time         `boil:"last_login"`
}

var userColumns = []string{
	"id", "first_name", "last_name", "email", "phone", "faculty", "student",
	"is_active", "roles", "password_hash", "created_at", "updated_at", "last_login",
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{baseRepository{exec: exec}}
}

func (repo userRepository) boil(usr user.User) *userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return &userRow{
		ID:           usr.ID,
		FirstName:    usr.FirstName,
		LastName:     usr.LastName,
		Email:        usr.Email,
		Phone:        usr.Phone,
		Faculty:      usr.Faculty,
		Student:      null.NewString(usr.Student, usr.Student != ""),
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unboil(row *userRow) user.User {
	if row == nil {
		return user.User{}
	}
	usr := user.User{
		ID:           row.ID,
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		Email:        row.Email,
		Phone:        row.Phone,
		Faculty:      row.Faculty,
		Student:      row.Student.String,
		IsActive:     row.IsActive,
		Roles:        row.Roles,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	return usr
}

func (repo userRepository) values(row *userRow) []interface{} {
	return []interface{}{
		row.ID, row.FirstName, row.LastName, row.Email, row.Phone, row.Faculty, row.Student,
		row.IsActive, row.Roles, row.PasswordHash, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	}
}

func (repo userRepository) exists(ctx context.Context, exec core.DBExecutor, mods ...qm.QueryMod) (bool, error) {
	cnt, err := count(ctx, exec, append([]qm.QueryMod{qm.From(userTable)}, mods...)...)
	return cnt > 0, err
}

func (repo userRepository) CheckUniqueness(ctx context.Context, email, student string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	var exclMods []qm.QueryMod
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		exclMods = append(exclMods, qm.WhereIn("id NOT IN ?", stringsToInterfaces(ids)...))
	}
	exe := repo.getExec(exec)

	found, err := repo.exists(ctx, exe, append([]qm.QueryMod{qm.Where("email = ?", email)}, exclMods...)...)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if found {
		return user.ErrEmailExists
	}

	if student != "" {
		found, err = repo.exists(ctx, exe, append([]qm.QueryMod{qm.Where("student = ?", student)}, exclMods...)...)
		if err != nil {
			return errors.Wrap(err, "checking student uniqueness")
		}
		if found {
			return user.ErrStudentExists
		}
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	row := repo.boil(usr)
	if err := insert(ctx, repo.getExec(exec), userTable, userColumns, repo.values(row)); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	mods := []qm.QueryMod{qm.Select("*"), qm.From(userTable)}

	if filter != nil {
		// users with FirstName, LastName or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			mods = append(mods, qm.Expr(qm.Where("first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ?", val, val, val)))
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleMods := make([]qm.QueryMod, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleMods = append(roleMods, qm.Or2(qm.Where(
					fmt.Sprintf("id IN (SELECT id FROM %s, UNNEST(roles) user_role WHERE user_role ILIKE ?)", userTable),
					role+"%")))
			}
			mods = append(mods, qm.Expr(roleMods...))
		}
		if filter.IsActive != nil {
			mods = append(mods, qm.Where("is_active = ?", *filter.IsActive))
		}
		if !filter.CreatedFrom.IsZero() {
			mods = append(mods, qm.Where("created_at >= ?", filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			mods = append(mods, qm.Where("created_at <= ?", filter.CreatedTo.UTC()))
		}
	}
	mods = append(mods, orderBy(ordering, "created_at DESC"))

	var rows []*userRow
	if err := newQuery(mods...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unboil(row))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	mods := []qm.QueryMod{qm.Select("*"), qm.From(userTable), qm.Limit(1)}

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		mods = append(mods, qm.Where("id = ?", filter.ID))
	case filter.Email != "":
		mods = append(mods, qm.Where("email = ?", filter.Email))
	default:
		return user.User{}, user.ErrNotFound
	}

	row := new(userRow)
	if err := newQuery(mods...).Bind(ctx, repo.getExec(exec), row); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := repo.boil(usr)
	vals := repo.values(row)

	cols := make(map[string]interface{}, len(userColumns)-1)
	for i, col := range userColumns {
		if col != "id" {
			cols[col] = vals[i]
		}
	}

	n, err := update(ctx, repo.getExec(exec), cols, qm.From(userTable), qm.Where("id = ?", usr.ID))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.unboil(row), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	cnt, err := deleteAll(ctx, repo.getExec(exec), qm.From(userTable), qm.WhereIn("id IN ?", stringsToInterfaces(valid)...))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return cnt, nil
}
