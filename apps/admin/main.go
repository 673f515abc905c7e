package main

import (
	"fmt"
	"log"
	"os"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
	logsvc "github.com/heluDuyne/lingolab/services/logger"
	"github.com/heluDuyne/lingolab/storage/database"
	sqlxrepos "github.com/heluDuyne/lingolab/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig(os.Getenv("LINGOLAB_CONFIG"))
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	// start CLI
	cli := commandLine{
		conf:     conf,
		db:       db,
		registry: attempt.NewRegistry(sqlxrepos.NewAttemptStore(db), nil, conf),
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}
