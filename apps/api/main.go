package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	echoapi "github.com/heluDuyne/lingolab/apps/api/echo"
	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
	emailsvc "github.com/heluDuyne/lingolab/services/email"
	logsvc "github.com/heluDuyne/lingolab/services/logger"
	"github.com/heluDuyne/lingolab/services/metrics"
	"github.com/heluDuyne/lingolab/services/upload"
	"github.com/heluDuyne/lingolab/storage/database"
	sqlxrepos "github.com/heluDuyne/lingolab/storage/database/sqlx"
)

func main() {
	configFile := flag.String("config", "", "optional config file")
	flag.Parse()

	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig(*configFile)

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, log.New(os.Stdout, "MAIL : ", log.LstdFlags), logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	registry := attempt.NewRegistry(sqlxrepos.NewAttemptStore(db), mailSvc, conf)

	media, err := upload.NewDiskStore(conf.Media, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up media store: %v", err), err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(promReg)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : %s", conf))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("database").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:     conf,
		Logger:   logger,
		Registry: registry,
		Media:    media,
		Metrics:  appMetrics,
		Gatherer: promReg,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
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
