package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, copyUser(*u))
	}
	return users
}

func (repo *userRepository) CheckUniqueness(_ context.Context, email, student string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}

	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
		if student != "" && usr.Student == student {
			return user.ErrStudentExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = uuid.New().String()
	stored := copyUser(usr)
	repo.db.users[usr.ID] = &stored
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if matchUser(usr, filter) {
			users = append(users, usr)
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			cmp := compareUsers(users[i], users[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case filter.ID != "":
		if usr, ok := repo.db.users[filter.ID]; ok {
			return copyUser(*usr), nil
		}
	case filter.Email != "":
		for _, usr := range repo.db.users {
			if usr.Email == filter.Email {
				return copyUser(*usr), nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	stored := copyUser(usr)
	repo.db.users[usr.ID] = &stored
	return usr, nil
}

// DeleteUsersByID deletes the users, their modifications, and forgets them as deciders.
func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	deleted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := repo.db.users[id]; ok {
			delete(repo.db.users, id)
			deleted[id] = true
		}
	}

	for id, mod := range repo.db.modifications {
		if deleted[mod.UserID] {
			delete(repo.db.modifications, id)
		} else if deleted[mod.DecidedBy] {
			mod.DecidedBy = ""
		}
	}
	return len(deleted), nil
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(usr.FirstName), search) ||
			strings.Contains(strings.ToLower(usr.LastName), search) ||
			strings.Contains(strings.ToLower(usr.Email), search)) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		var found bool
		for _, role := range filter.Roles {
			for _, usrRole := range usr.Roles {
				if strings.HasPrefix(strings.ToLower(usrRole), strings.ToLower(role)) {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

// compareUsers compares a and b on one of user.OrderingFields.
func compareUsers(a, b user.User, field string) int {
	switch field {
	case "first_name":
		return strings.Compare(a.FirstName, b.FirstName)
	case "last_name":
		return strings.Compare(a.LastName, b.LastName)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "last_login":
		return compareTimes(a.LastLogin, b.LastLogin)
	case "is_active":
		switch {
		case a.IsActive == b.IsActive:
			return 0
		case b.IsActive:
			return -1
		default:
			return 1
		}
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
