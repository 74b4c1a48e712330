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

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/restforge/restforge/examples/blog"
	"github.com/restforge/restforge/internal/config"
	"github.com/restforge/restforge/internal/engine/contract"
	"github.com/restforge/restforge/internal/engine/descriptor"
	"github.com/restforge/restforge/internal/engine/orchestrator"
	"github.com/restforge/restforge/internal/storage/sqlstore"
	"github.com/restforge/restforge/internal/web/resource"
)

var serveInitDB bool

func init() {
	serveCmd.Flags().BoolVar(&serveInitDB, "init-db", false, "Create missing tables before serving")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sample blog API",
	Long: `Start the HTTP server over the sample blog domain. Configuration is
read from restforge.yml with RESTFORGE_* environment overrides; the
database URL can also be supplied as DATABASE_URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer logger.Sync()

		db, dialect, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if serveInitDB {
			for _, stmt := range blog.Schema() {
				if _, err := db.Exec(stmt); err != nil {
					return fmt.Errorf("failed to initialize schema: %w", err)
				}
			}
			logger.Info("schema initialized")
		}

		registry := descriptor.NewRegistry()
		if err := blog.Register(registry); err != nil {
			return err
		}

		store := sqlstore.New(db, dialect, blog.Descriptors()...)
		generator := contract.NewGenerator(registry)
		orch := orchestrator.New(store, registry, generator, logger)
		handler := resource.NewHandler(orch, registry, nil, logger)

		prefix := cfg.Server.APIPrefix
		if prefix == "" {
			prefix = "/"
		}
		mux := chi.NewRouter()
		mux.Mount(prefix, handler.Routes())

		server := &http.Server{
			Addr:         cfg.Addr(),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server listening",
				zap.String("addr", cfg.Addr()),
				zap.String("prefix", cfg.Server.APIPrefix))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logger.Info("shutting down", zap.String("signal", sig.String()))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	},
}

func openDatabase(cfg *config.Config) (*sql.DB, sqlstore.Dialect, error) {
	url := cfg.DatabaseURL()
	if url == "" {
		return nil, 0, fmt.Errorf("no database URL configured (set database.url or DATABASE_URL)")
	}

	var dialect sqlstore.Dialect
	switch cfg.Database.Driver {
	case "postgres":
		dialect = sqlstore.DialectPostgres
	case "sqlite3":
		dialect = sqlstore.DialectSQLite
	default:
		return nil, 0, fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}

	db, err := sql.Open(cfg.Database.Driver, url)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.MaxIdle)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, 0, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, dialect, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Logging.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
