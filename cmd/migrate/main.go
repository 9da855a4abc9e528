package main

import (
	"fmt"
	"os"

	"github.com/safar/go-stock-ledger/internal/config"
	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [up|down|version]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{})
		bootLog.Fatal().Err(err).Msg("load config")
	}

	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	m, err := database.NewMigrator(db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create migrator")
	}

	switch direction := os.Args[1]; direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		version, dirty, verr := m.Version()
		if verr == nil {
			log.Info().Uint("version", version).Bool("dirty", dirty).Msg("current schema version")
		}
		err = verr
	default:
		log.Fatal().Str("direction", direction).Msg("direction must be up, down or version")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}
