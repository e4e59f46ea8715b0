// Command labelscan submits product labels to the verification service from
// a terminal.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labelscan/portal/internal/config"
	"github.com/labelscan/portal/internal/observability"
	"github.com/labelscan/portal/internal/repository"
	"github.com/labelscan/portal/internal/services"
	"github.com/spf13/cobra"
)

// app holds what every subcommand shares. It is built before any subcommand
// runs.
type app struct {
	cfg     config.Config
	db      *sql.DB
	backend *services.BackendClient
	auth    *services.AuthService
	tokens  services.TokenStore
	history repository.HistoryRepo
}

func (a *app) open() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	observability.GetLogger().SetServiceName("labelscan")
	observability.EnableDebug(cfg.Features.Debug)

	db, err := repository.Open(cfg.DatabaseURL, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	system := "sqlite"
	if cfg.UsePostgres() {
		system = "postgresql"
	}
	traced, err := observability.NewTraceDB(db, system)
	if err != nil {
		db.Close()
		return err
	}

	a.cfg = cfg
	a.db = db
	a.backend = services.NewBackendClient(cfg, &http.Client{Timeout: 2 * time.Minute})
	a.auth = services.NewAuthService(a.backend, nil)
	a.tokens = services.NewKVTokenStore(repository.NewKeyValueRepository(traced), cfg.Auth.TokenKey)
	a.history = repository.NewHistoryRepository(traced)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "labelscan",
		Short:         "Verify alcohol beverage labels against their declared product data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newSubmitCmd(a),
		newHistoryCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	defer a.close()

	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
