/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the vacation engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config.yml, .env and environment overrides
  2. Configure JSON logging
  3. Open the SQLite or PostgreSQL store
  4. Seed the vacation type catalog and settings on an empty database
  5. Wire the engine, notification sinks and reminder scheduler
  6. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to the YAML config file (default: config.yml)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reminder scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Local run on SQLite
  DB_PATH=./data/vacation.db ./server

  # PostgreSQL
  DB_DRIVER=postgres DB_HOST=db DB_PASSWORD=secret ./server

SEE ALSO:
  - config/config.go: Every setting and its environment variable
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warp/vacation-engine/api"
	"github.com/warp/vacation-engine/config"
	"github.com/warp/vacation-engine/factory"
	"github.com/warp/vacation-engine/notify"
	"github.com/warp/vacation-engine/store/postgres"
	"github.com/warp/vacation-engine/store/sqlite"
	"github.com/warp/vacation-engine/vacation"
)

type backend interface {
	api.Backend
	Close() error
}

func main() {
	configPath := flag.String("config", "config.yml", "YAML config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	setupLogging(conf.Log.Level)

	store, err := openStore(conf)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	ctx := context.Background()
	if err := seed(ctx, conf, store); err != nil {
		log.WithError(err).Fatal("failed to seed catalog")
	}

	inbox := notify.NewRecorder(1000)
	engine := vacation.NewEngine(store, vacation.Options{
		Directory: store,
		Settings:  store,
		Sink:      notify.Fanout{notify.NewLogSink(log.StandardLogger()), inbox},
		Logger:    log.StandardLogger(),
	})

	handler := api.NewHandler(engine, store, inbox)
	router := api.NewRouter(handler, conf.Origins())

	scheduler := api.NewReminderScheduler(engine)
	scheduler.CheckInterval = conf.ReminderInterval()
	scheduler.Enabled = conf.Reminder.Enabled != nil && *conf.Reminder.Enabled
	scheduler.Start()

	server := &http.Server{
		Addr:         conf.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", conf.Addr()).WithField("driver", conf.Database.Driver).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	log.Info("server stopped")
}

func setupLogging(level string) {
	log.SetFormatter(&log.JSONFormatter{
		FieldMap: log.FieldMap{
			log.FieldKeyTime: "@timestamp",
			log.FieldKeyMsg:  "message",
		},
	})
	log.SetOutput(os.Stdout)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func openStore(conf *config.Configuration) (backend, error) {
	if conf.Database.Driver == "postgres" {
		migrate := conf.Database.MigrateOnStart == nil || *conf.Database.MigrateOnStart
		pg, err := postgres.New(conf.PostgresDSN(), migrate)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	lite, err := sqlite.New(conf.Database.Path)
	if err != nil {
		return nil, err
	}
	return lite, nil
}

// seed fills an empty database: default vacation types, the optional catalog
// file, then settings built from the configuration when none are active.
func seed(ctx context.Context, conf *config.Configuration, store backend) error {
	cf := factory.NewCatalogFactory()

	types, err := store.ListVacationTypes(ctx)
	if err != nil {
		return err
	}
	if len(types) == 0 {
		c, err := cf.ParseCatalog(factory.DefaultCatalogJSON)
		if err != nil {
			return err
		}
		c.Settings = nil
		if err := cf.Apply(ctx, store, c); err != nil {
			return err
		}
		log.WithField("vacation_types", len(c.VacationTypes)).Info("seeded default vacation types")
	}

	if path := conf.Vacation.CatalogFile; path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read catalog %s", path)
		}
		c, err := cf.ParseCatalog(string(raw))
		if err != nil {
			return err
		}
		if err := cf.Apply(ctx, store, c); err != nil {
			return err
		}
		log.WithField("file", path).Info("catalog applied")
	}

	_, err = store.ActiveSettings(ctx)
	if err == nil {
		return nil
	}
	if !vacation.IsNotFound(err) {
		return err
	}
	settings, err := conf.Settings()
	if err != nil {
		return err
	}
	if err := store.SaveSettings(ctx, settings); err != nil {
		return err
	}
	log.WithField("non_working_dates", len(settings.NonWorkingDates)).Info("seeded settings from configuration")
	return nil
}
