package main

import (
	"context"
	"errors"
	"time"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(ctx context.Context, email, firstName, lastName, pwd string, isAdmin bool) error {
	email = core.CleanString(email, true /* lower */)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	exists := err == nil
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return err
		}
		usr = user.User{Email: email, Roles: user.MemberRoles, CreatedAt: now}
	}

	if name := core.CleanString(firstName); name != "" {
		usr.FirstName = name
	}
	if name := core.CleanString(lastName); name != "" {
		usr.LastName = name
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}
