package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	dig_container "github.com/trezcool/scholar/apps/api/di/dig"
	echoapi "github.com/trezcool/scholar/apps/api/echo"
	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/session"
	"github.com/trezcool/scholar/core/user"
	"github.com/trezcool/scholar/services/telemetry"
)

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sql.DB,
		events core.EventPublisher,
		validate *validator.Validate,
		translator ut.Translator,
		sessionSvc session.ServiceInterface,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)

		core.ParseEmailTemplates(conf, apiLogger)

		user.LoadCommonPasswords(apiLogger)

		shutdownTracing, err := telemetry.Init(context.Background(), conf)
		if err != nil {
			apiLogger.Fatal(fmt.Sprintf("setting up tracing: %v", err), err)
		}

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if db == nil {
				return
			}
			if err := db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer func() {
			for _, v := range []interface{}{events, apiLogger} {
				if closer, ok := v.(interface{ Close() }); ok {
					closer.Close()
				}
			}
		}()
		defer apiLogger.Info("Application stopped")

		// the calendar may have moved on while the API was down
		if cur, err := sessionSvc.Reconcile(context.Background()); err != nil {
			apiLogger.Error(fmt.Sprintf("reconciling current session: %v", err), err)
		} else if cur != nil {
			apiLogger.Info(fmt.Sprintf("current session: %s", cur.DisplayName()))
		}

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
			if err := shutdownTracing(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("flushing traces: %v", err), err)
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
