package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/farafmb/klubhaus/core/modification"
	"github.com/farafmb/klubhaus/core/user"
	"github.com/farafmb/klubhaus/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword       // mockable
	gooseRunFunc     = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sql.DB
	usrRepo user.Repository
	modSvc  *modification.Service
	out     io.Writer
}

func (cli *commandLine) run(args []string) error {
	if args == nil {
		args = []string{} // cobra falls back to os.Args on nil
	}
	root := cli.rootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func (cli *commandLine) rootCmd() *cobra.Command {
	if cli.out == nil {
		cli.out = os.Stdout
	}

	root := &cobra.Command{
		Use:           "admin",
		Short:         "Klubhaus administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.notifyAdminsCmd(),
	)
	return root
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command: up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			return gooseRunFunc(cli.db, args[0], args[1:]...)
		},
	}
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var (
		email, firstName, lastName string
		isAdmin                    bool
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create or update an active user; the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := promptPassword(cmd)
			if err != nil {
				return err
			}
			return cli.addUser(context.Background(), email, firstName, lastName, pwd, isAdmin)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's e-mail address")
	cmd.Flags().StringVar(&firstName, "first-name", "", "the user's first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "the user's last name")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant every role")
	return cmd
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password; the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := promptPassword(cmd)
			if err != nil {
				return err
			}
			return cli.resetPassword(context.Background(), email, pwd)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's e-mail address")
	return cmd
}

func (cli *commandLine) notifyAdminsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notifyadmins",
		Short: "E-mail every active admin about the pending modification requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.notifyAdmins(context.Background())
		},
	}
}

func promptPassword(cmd *cobra.Command) (string, error) {
	cmd.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	cmd.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		_ = cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, args...)
}
