// Package testutil holds the fixtures shared by the test suites.
package testutil

import (
	"context"
	"io"
	"net/mail"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/user"
	logsvc "github.com/farafmb/klubhaus/services/logger"
)

const EmailDomain = "st.ovgu.de"

// NewConfig returns a TEST Config that does not depend on the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		AppName:                   "Klubhaus",
		SecretKey:                 "test-secret-key",
		FrontendBaseURL:           "http://localhost:8080",
		DefaultFromEmail:          mail.Address{Name: "Klubhaus", Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		EmailDomain:               EmailDomain,
		ProfileExtended:           true,
		Server: core.ServerConfig{
			Host:                      "localhost",
			JWTExpirationDelta:        15 * time.Minute,
			JWTRefreshExpirationDelta: 7 * 24 * time.Hour,
			ShutdownTimeout:           5 * time.Second,
		},
	}
}

func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(io.Discard, conf)
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator(conf *core.Config) (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator, conf.EmailDomain)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	firstName, lastName, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}
