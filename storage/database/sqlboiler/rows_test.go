package boiledrepos

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/modification"
	"github.com/farafmb/klubhaus/core/user"
)

func TestUserRow(t *testing.T) {
	repo := userRepository{}
	now := time.Now()

	usr := user.User{ID: "1", FirstName: "Anna", Email: "anna@st.ovgu.de", CreatedAt: now, UpdatedAt: now}
	row := repo.boil(usr)
	assert.False(t, row.Student.Valid, "empty student IDs are stored as NULL")
	assert.False(t, row.PasswordHash.Valid)
	assert.False(t, row.LastLogin.Valid)
	assert.NotNil(t, row.Roles)

	usr.Student, usr.LastLogin, usr.Roles = "123456", now, user.MemberRoles
	got := repo.unboil(repo.boil(usr))
	assert.Equal(t, "123456", got.Student)
	assert.Equal(t, user.MemberRoles, got.Roles)
	assert.True(t, now.Equal(got.LastLogin))
	assert.Equal(t, time.UTC, got.CreatedAt.Location())
	assert.Len(t, repo.values(row), len(userColumns))
}

func TestModificationRow(t *testing.T) {
	repo := modificationRepository{}
	mod := modification.Modification{
		ID:     "1",
		UserID: "2",
		Content: modification.Diff{
			{Field: "phone", Change: modification.Change{New: "+491701"}},
			{Field: "email", Change: modification.Change{Old: "a@st.ovgu.de", New: "b@st.ovgu.de"}},
		},
		State:     modification.Requested,
		CreatedAt: time.Now(),
	}

	row, err := repo.boil(mod)
	require.NoError(t, err)
	assert.False(t, row.DecidedAt.Valid)
	assert.False(t, row.DecidedBy.Valid)
	assert.JSONEq(t, `{"phone":{"old":"","new":"+491701"},"email":{"old":"a@st.ovgu.de","new":"b@st.ovgu.de"}}`, string(row.Content))
	assert.Len(t, repo.values(row), len(modificationColumns))

	mod.State, mod.DecidedAt, mod.DecidedBy = modification.Accepted, time.Now(), "3"
	row, err = repo.boil(mod)
	require.NoError(t, err)
	got, err := repo.unboil(row)
	require.NoError(t, err)
	assert.Equal(t, mod.Content.Canonical(), got.Content)
	assert.Equal(t, modification.Accepted, got.State)
	assert.Equal(t, "3", got.DecidedBy)
	assert.True(t, mod.DecidedAt.Equal(got.DecidedAt))

	// jsonb hands keys back shortest first
	row.Content = []byte(`{"phone":{"old":"","new":"+491701"},"first_name":{"old":"Anna","new":"Anne"}}`)
	got, err = repo.unboil(row)
	require.NoError(t, err)
	assert.Equal(t, modification.Diff{
		{Field: "first_name", Change: modification.Change{Old: "Anna", New: "Anne"}},
		{Field: "phone", Change: modification.Change{New: "+491701"}},
	}, got.Content, "content is read back in field order")

	row.Content = []byte(`["lol"]`)
	_, err = repo.unboil(row)
	assert.Error(t, err)
}

func TestOrderBy(t *testing.T) {
	build := func(mod qm.QueryMod) string {
		q := newQuery(qm.From(userTable), mod)
		query, _ := queries.BuildQuery(q)
		return query
	}
	assert.Contains(t, build(orderBy(nil, "created_at DESC")), "ORDER BY created_at DESC")
	assert.Contains(t, build(orderBy([]core.DBOrdering{{Field: "last_name", Ascending: true}, {Field: "email"}}, "")),
		"ORDER BY last_name ASC, email DESC")
}

func TestTrapNoRowsErr(t *testing.T) {
	assert.Equal(t, user.ErrNotFound, trapNoRowsErr(sql.ErrNoRows, user.ErrNotFound, "finding user"))

	err := trapNoRowsErr(sql.ErrConnDone, user.ErrNotFound, "finding user")
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.Contains(t, err.Error(), "finding user")
}
