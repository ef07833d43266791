package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"cellar-service/internal/catalog"
	"cellar-service/internal/config"
)

var (
	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "cellar",
	Short:         "Wine inventory service with supplier price-list reconciliation",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env необязателен, переменные окружения важнее
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return eris.Wrap(err, "load .env")
		}
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		logger = config.SetupLogger(cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// логгер может быть ещё не настроен, если упала загрузка конфига
		fmt.Fprintln(os.Stderr, "cellar:", err)
		os.Exit(1)
	}
}

// openStore opens the configured catalog, creating the SQLite directory when needed.
func openStore(ctx context.Context) (catalog.Store, error) {
	driver, dsn := cfg.StoreDSN()
	if driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, eris.Wrapf(err, "create dir for %s", dsn)
		}
	}
	store, err := catalog.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
