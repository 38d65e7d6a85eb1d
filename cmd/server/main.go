package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"

	"conciliacion-service/internal/config"
	"conciliacion-service/internal/database"
	"conciliacion-service/internal/extract"
	"conciliacion-service/internal/handlers"
	"conciliacion-service/internal/repositories"
	"conciliacion-service/internal/services"
)

func main() {
	migrateCmd := flag.String("migrate", "", "Migration command (up/down/version)")
	steps := flag.Int("steps", 0, "Number of migration steps (0 means all)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	db, err := database.NewConnection(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error connecting to database")
	}
	defer db.Close()

	if *migrateCmd != "" {
		handleMigration(cfg, log, *migrateCmd, *steps)
		return
	}

	extractRepo := repositories.NewExtractRepository(db)
	systemRepo := repositories.NewSystemRepository(db)
	matchRepo := repositories.NewMatchRepository(db)
	configRepo := repositories.NewConfigRepository(db)
	aliasRepo := repositories.NewAliasRepository(db)
	accountRepo := repositories.NewAccountRepository(db)
	periodRepo := repositories.NewPeriodRepository(db)
	currencyRepo := repositories.NewCurrencyRepository(db)

	resolver := services.NewDateRangeResolver(extractRepo)
	guard := services.NewIntegrityGuard(matchRepo, log)
	currencies := services.NewCurrencyCache(currencyRepo)

	registry := extract.NewRegistry()
	registry.Register(extract.NewJSONExtractor())

	matchingService := services.NewMatchingService(
		db, extractRepo, systemRepo, matchRepo, configRepo,
		aliasRepo, accountRepo, resolver, guard, log,
	)
	periodService := services.NewPeriodService(periodRepo, extractRepo, systemRepo, accountRepo, log)
	ingestionService := services.NewIngestionService(
		db, registry, extractRepo, systemRepo, accountRepo,
		periodService, currencies, log,
	)

	router := handlers.SetupRouter(
		handlers.NewMatchingHandler(matchingService, guard),
		handlers.NewPeriodHandler(periodService),
		handlers.NewDataHandler(ingestionService, configRepo, aliasRepo, currencyRepo),
		log,
	)

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.ServerAddress).Msg("server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("server exited gracefully")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.Environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

func handleMigration(cfg *config.Config, log zerolog.Logger, command string, steps int) {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", cfg.Migration.Dir),
		cfg.GetMigrationDBURL(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "no change") {
			log.Info().Msg("no migration changes to apply")
			return
		}
		log.Fatal().Err(err).Msg("failed to initialize migrate")
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verErr := m.Version()
		if verErr != nil {
			if verErr == migrate.ErrNilVersion {
				log.Info().Msg("no migrations have been applied yet")
				return
			}
			log.Fatal().Err(verErr).Msg("failed to get version")
		}
		fmt.Printf("Current migration version: %d (dirty: %v)\n", version, dirty)
		return
	default:
		log.Fatal().Str("command", command).Msg("invalid migration command")
	}

	if err != nil {
		if err == migrate.ErrNoChange {
			log.Info().Msg("no migration changes to apply")
			return
		}
		log.Fatal().Err(err).Msg("migration failed")
	}

	log.Info().Msg("migration completed successfully")
}
