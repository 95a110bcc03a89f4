package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	dig_container "github.com/projectsmartedu/SmartEducation-sub001/apps/api/di/dig"
	echoapi "github.com/projectsmartedu/SmartEducation-sub001/apps/api/echo"
	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/course"
	"github.com/projectsmartedu/SmartEducation-sub001/core/deadline"
	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
	"github.com/projectsmartedu/SmartEducation-sub001/services/importer"
	"github.com/projectsmartedu/SmartEducation-sub001/services/realtime"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		closeStore dig_container.StoreCloser,
		catalog course.Store,
		validate *validator.Validate,
		translator ut.Translator,
		hub *realtime.Hub,
		bus dig_container.Bus,
		runner *deadline.Runner,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : %s", conf))

		core.InitValidators(validate, translator)
		revision.InitValidators(validate, translator)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := closeStore(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		if conf.Catalog.SeedFile != "" {
			res, err := importer.New(catalog).Import(context.Background(), importer.Config{
				FilePath:  conf.Catalog.SeedFile,
				SheetName: conf.Catalog.SeedSheet,
			})
			if err != nil {
				apiLogger.Fatal(fmt.Sprintf("importing catalog %s: %v", conf.Catalog.SeedFile, err), err)
			}
			apiLogger.Info(fmt.Sprintf("catalog imported: %d courses, %d topics, %d enrollments, %d bad rows",
				res.Courses, res.Topics, res.Enrollments, len(res.Errors)))
		}

		// =========================================================================
		// Start Debug Service
		//
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		if conf.Server.DebugHost != "" {
			go func() {
				if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
					apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
				}
			}()
		}

		// =========================================================================
		// Start Event Forwarding & Jobs

		fwdCtx, stopForwarding := context.WithCancel(context.Background())
		defer stopForwarding()
		if bus.RedisBus != nil {
			if err := bus.StartForwarder(fwdCtx, hub); err != nil {
				apiLogger.Fatal(fmt.Sprintf("starting redis forwarder: %v", err), err)
			}
			defer func() { _ = bus.Close() }()
		}

		if err := runner.Start(); err != nil {
			apiLogger.Fatal(fmt.Sprintf("starting jobs: %v", err), err)
		}
		defer runner.Stop()

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
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
