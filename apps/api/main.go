package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // register /debug/pprof
	"os"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/farafmb/klubhaus/apps/api/echo"
	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/modification"
	"github.com/farafmb/klubhaus/core/user"
	emailsvc "github.com/farafmb/klubhaus/services/email"
	logsvc "github.com/farafmb/klubhaus/services/logger"
	"github.com/farafmb/klubhaus/services/metrics"
	"github.com/farafmb/klubhaus/storage/database"
	boiledrepos "github.com/farafmb/klubhaus/storage/database/sqlboiler"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logsvc.NewRollbarLogger(os.Stdout, conf)
	defer logger.Close()

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf)
	}

	usrRepo := boiledrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, mailSvc, conf, logger)
	modSvc := modification.NewService(
		database.NewTransactor(db),
		boiledrepos.NewModificationRepository(db),
		usrRepo,
		mailSvc,
		logger,
		conf,
	)

	appMetrics := metrics.New()
	modSvc.SetObserver(appMetrics)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator, conf.EmailDomain)

	if err = user.LoadCommonPasswords(); err != nil {
		logger.Error("loading common passwords", err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /debug/metrics - Prometheus metrics.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/debug/metrics", appMetrics.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		ModSvc:     modSvc,
		Metrics:    appMetrics,
		Validate:   validate,
		Translator: translator,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
