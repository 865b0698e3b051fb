package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/dispatch"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/selector"
	"github.com/example/ride-dispatch/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("error").Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logging.NewLogger(cfg.LogLevel)

	if cfg.PGDSN != "" && cfg.RunMigrations {
		if err := runMigrations(cfg.PGDSN); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	var dir directory.Directory
	if cfg.RedisAddr != "" {
		dir = directory.NewRedisDirectory(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		log.Info("driver directory: redis", "addr", cfg.RedisAddr)
	} else {
		dir = directory.NewMemory()
		log.Warn("driver directory: in-memory, single-process only")
	}

	var store storage.RideStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		store = ps
		log.Info("ride store: postgres")
	} else {
		store = storage.NewMemoryStore()
		log.Warn("ride store: in-memory, rides are lost on restart")
	}

	var locations *ingest.LocationProducer
	var events ride.EventSink
	if len(cfg.KafkaBrokers) > 0 {
		locations = ingest.NewLocationProducer(cfg.KafkaBrokers, cfg.LocationTopic)
		ep := ingest.NewEventProducer(cfg.KafkaBrokers, cfg.RideEventsTopic)
		defer ep.Close()
		defer locations.Close()
		events = ep
		log.Info("kafka wired", "brokers", cfg.KafkaBrokers)
	}

	var gateway payments.Gateway
	if cfg.StripeEnabled {
		gateway = payments.NewStripeGateway()
		log.Info("stripe payment gateway enabled")
	}

	wsreg := notify.NewWSRegistry()
	routes := []notify.Publisher{wsreg}
	if cfg.PushEndpoint != "" {
		routes = append(routes, notify.NewPushRoute(cfg.PushEndpoint, cfg.PushKey))
	}
	notifier := &notify.Multi{Routes: routes, Log: logging.ForComponent(log, "notify")}

	rides := &ride.Service{
		Store:    store,
		Dir:      dir,
		Notifier: notifier,
		Events:   events,
		Gateway:  gateway,
		Holds:    payments.NewHoldLedger(),
		Cfg: ride.Config{
			OTPTTL:         cfg.OTPTTL,
			OTPTestBypass:  cfg.OTPTestBypass,
			OTPBypassCode:  cfg.OTPBypassCode,
			CommissionRate: cfg.CommissionRate,
			Surge:          cfg.Surge,
			Currency:       cfg.Currency,
		},
		Log: logging.ForComponent(log, "lifecycle"),
	}

	sel := &selector.Selector{
		Dir: dir,
		Opts: selector.Options{
			RadiusKm:        cfg.MatchRadiusKm,
			MaxResults:      cfg.MaxCandidates,
			ExpandOnNoMatch: cfg.ExpandOnNoMatch,
			SpeedKmh:        cfg.SpeedKmh,
		},
	}

	coord := dispatch.NewCoordinator(sel, rides, notifier, logging.ForComponent(log, "dispatch"))
	coord.SessionTTL = cfg.SessionTimeout
	coord.OfferTTL = cfg.OfferTTL

	srv := httpapi.NewServer(httpapi.Deps{
		Rides:       rides,
		Coordinator: coord,
		Dir:         dir,
		WSReg:       wsreg,
		Locations:   locations,
		Logger:      logging.ForComponent(log, "http"),
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
