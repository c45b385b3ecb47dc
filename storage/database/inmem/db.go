// Package inmemdb is an in-memory implementation of the repositories, used by tests and local runs.
package inmemdb

import (
	"context"
	"sync"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/modification"
	"github.com/farafmb/klubhaus/core/user"
)

type DB struct {
	txMu  sync.Mutex // serializes transactions
	mutex sync.RWMutex

	users         map[string]*user.User
	modifications map[string]*modification.Modification
}

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		modifications: make(map[string]*modification.Modification),
	}
}

// Reset drops every row.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.users = make(map[string]*user.User)
	db.modifications = make(map[string]*modification.Modification)
}

// InTx runs fn; every change fn made is undone if it returns an error.
// The exec handed to fn is nil: the in-memory repositories ignore it.
func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	users, mods := db.snapshot()
	if err := fn(nil); err != nil {
		db.mutex.Lock()
		db.users, db.modifications = users, mods
		db.mutex.Unlock()
		return err
	}
	return nil
}

func (db *DB) snapshot() (map[string]*user.User, map[string]*modification.Modification) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	users := make(map[string]*user.User, len(db.users))
	for id, u := range db.users {
		usr := copyUser(*u)
		users[id] = &usr
	}
	mods := make(map[string]*modification.Modification, len(db.modifications))
	for id, m := range db.modifications {
		mod := copyModification(*m)
		mods[id] = &mod
	}
	return users, mods
}

func copyUser(usr user.User) user.User {
	if usr.Roles != nil {
		usr.Roles = append([]string{}, usr.Roles...)
	}
	if usr.PasswordHash != nil {
		usr.PasswordHash = append([]byte{}, usr.PasswordHash...)
	}
	return usr
}

func copyModification(mod modification.Modification) modification.Modification {
	if mod.Content != nil {
		mod.Content = append(modification.Diff{}, mod.Content...)
	}
	return mod
}
