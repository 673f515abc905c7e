package main

import (
	"github.com/heluDuyne/lingolab/storage/database"
)

var (
	defaultMigrateFunc = database.RunMigrations
	migrateFunc        = defaultMigrateFunc // mockable
)

func (cli *commandLine) migrate(args []string) error {
	return migrateFunc(cli.db, args[0], args[1:]...)
}
