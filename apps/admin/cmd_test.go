package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farafmb/klubhaus/core/modification"
	"github.com/farafmb/klubhaus/core/user"
	emailsvc "github.com/farafmb/klubhaus/services/email"
	inmemdb "github.com/farafmb/klubhaus/storage/database/inmem"
	"github.com/farafmb/klubhaus/tests"
)

var (
	usrRepo user.Repository
	modRepo modification.Repository
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	conf := testutil.NewConfig()

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	modRepo = inmemdb.NewModificationRepository(db)
	emailsvc.TakeSentMessages()

	out := new(bytes.Buffer)
	return &commandLine{
		usrRepo: usrRepo,
		modSvc: modification.NewService(
			db, modRepo, usrRepo, emailsvc.NewConsoleServiceMock(conf), testutil.NewLogger(conf), conf,
		),
		out: out,
	}, out
}

type cliTest struct {
	name       string
	args       []string
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func checkErr(t *testing.T, tt cliTest, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tt.wantErrStr)
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_root(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(tt.args))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(_ *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_index", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(tt.args))
		})
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)
	existing := testutil.CreateUser(t, usrRepo, "Hero", "Held", "hero@st.ovgu.de", "", user.MemberRoles, false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no email", args: []string{"adduser"}, extra: extra{pwd: "lol"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "--email", "new@st.ovgu.de"}, wantErr: errHelp},
		{name: "new admin", args: []string{"adduser", "--email", "New@st.ovgu.de", "--first-name", "Nina", "--admin"}, extra: extra{pwd: "lol"}},
		{name: "existing user", args: []string{"adduser", "--email", existing.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(tt.args))
		})
	}

	admin, err := usrRepo.GetUser(context.Background(), user.GetFilter{Email: "new@st.ovgu.de"})
	require.NoError(t, err)
	assert.True(t, admin.IsActive)
	assert.True(t, admin.IsAdmin())
	assert.Equal(t, "Nina", admin.FirstName)
	assert.NoError(t, admin.CheckPassword("lol"))

	usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: existing.ID})
	require.NoError(t, err)
	assert.True(t, usr.IsActive, "existing user activated")
	assert.Equal(t, "Hero", usr.FirstName)
	assert.False(t, usr.IsAdmin())
	assert.NoError(t, usr.CheckPassword("lmao"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Hero", "Held", "hero@st.ovgu.de", "mdr", user.MemberRoles, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no email", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "--email", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "--email", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "--email", "HERO@st.ovgu.de"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(tt.args))
		})
	}

	refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("lmao"))
}

func Test_commandLine_notifyAdmins(t *testing.T) {
	cli, out := setup(t)

	member := testutil.CreateUser(t, usrRepo, "Hero", "Held", "hero@st.ovgu.de", "", user.MemberRoles, true)
	testutil.CreateUser(t, usrRepo, "Clara", "Admin", "clara@st.ovgu.de", "", []string{user.RoleAdmin}, true)

	require.NoError(t, cli.run([]string{"notifyadmins"}))
	assert.Equal(t, "pending modifications: 0, admins notified: 0\n", out.String())
	assert.Empty(t, emailsvc.TakeSentMessages())

	_, err := modRepo.CreateModification(context.Background(), modification.Modification{
		UserID:  member.ID,
		Content: modification.Diff{{Field: "last_name", Change: modification.Change{Old: "Held", New: "Heldin"}}},
	})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, cli.run([]string{"notifyadmins"}))
	assert.Equal(t, "pending modifications: 1, admins notified: 1\n", out.String())

	msgs := emailsvc.TakeSentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "clara@st.ovgu.de", msgs[0].To[0].Address)
}
