package main

import (
	"fmt"
	"os"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/modification"
	emailsvc "github.com/farafmb/klubhaus/services/email"
	logsvc "github.com/farafmb/klubhaus/services/logger"
	"github.com/farafmb/klubhaus/storage/database"
	boiledrepos "github.com/farafmb/klubhaus/storage/database/sqlboiler"
)

func main() {
	conf, err := core.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger := logsvc.NewRollbarLogger(os.Stderr, conf)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf)
	}

	usrRepo := boiledrepos.NewUserRepository(db)
	cli := &commandLine{
		db:      db,
		usrRepo: usrRepo,
		modSvc: modification.NewService(
			database.NewTransactor(db),
			boiledrepos.NewModificationRepository(db),
			usrRepo,
			mailSvc,
			logger,
			conf,
		),
	}

	err = cli.run(os.Args[1:])
	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
