// README: Entry point; loads config, wires services, serves HTTP until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ridecore/internal/ai"
	"ridecore/internal/cache"
	"ridecore/internal/config"
	"ridecore/internal/events"
	httptransport "ridecore/internal/http"
	"ridecore/internal/infra"
	"ridecore/internal/logging"
	"ridecore/internal/maps"
	"ridecore/internal/modules/advisory"
	"ridecore/internal/modules/dispatch"
	"ridecore/internal/modules/driver"
	"ridecore/internal/modules/fare"
	"ridecore/internal/modules/history"
	"ridecore/internal/modules/ride"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.NewLogger(cfg.Log.Level)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("ridecore-api exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	if cfg.DB.AutoMigrate {
		if err := infra.Migrate(ctx, dbPool); err != nil {
			return err
		}
	}

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()

	c := cache.New(cache.NewRedisBackend(redisClient), log)
	versions := cache.NewVersions(c)

	llm, closeLLM, err := newLLM(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLLM()

	geocoder, err := newGeocoder(cfg, llm)
	if err != nil {
		return err
	}
	resolver := advisory.NewDestinationResolver(geocoder, c, log)
	ranker := advisory.NewDispatchRanker(llm, cfg.AI.Timeout, log)

	fareSvc := fare.NewService(fare.NewStore(dbPool), c, versions, log)

	driverSvc := driver.NewService(driver.NewStore(dbPool), driver.NewGeoIndex(redisClient), c, versions, log)
	if cfg.Tracking.DatabaseURL != "" {
		rtdb, err := infra.NewFirebaseDatabase(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.CredentialsFile, cfg.Tracking.DatabaseURL)
		if err != nil {
			return err
		}
		driverSvc.WithMirror(driver.NewRTDBMirror(rtdb))
	}

	var publisher interface {
		ride.Publisher
		Close() error
	} = events.Noop{}
	if w := infra.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic); w != nil {
		publisher = events.NewKafkaPublisher(w)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("event publisher close", "err", err)
		}
	}()

	attempts := dispatch.NewAttemptLog(redisClient)
	dispatchSvc := dispatch.NewService(
		dispatch.NewPGStore(dbPool), driverSvc, ranker, log,
		dispatch.WithPublisher(publisher),
		dispatch.WithAttemptRecorder(attempts),
		dispatch.WithDriverRefresher(driverSvc),
		dispatch.WithRadiusKm(cfg.Dispatch.RadiusKm),
	)
	rideSvc := ride.NewService(ride.NewStore(dbPool), resolver, fareSvc, dispatchSvc, publisher, log).
		WithDriverRefresher(driverSvc)
	historySvc := history.NewService(history.NewStore(dbPool))

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Rides:        rideSvc,
		Drivers:      driverSvc,
		Fares:        fareSvc,
		History:      historySvc,
		Destinations: resolver,
		Attempts:     attempts,
		Verifier:     verifier,
		Logger:       log,
		Ready: func(ctx context.Context) error {
			return errors.Join(dbPool.Ping(ctx), redisClient.Ping(ctx).Err())
		},
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newVerifier(ctx context.Context, cfg config.Config) (infra.TokenVerifier, error) {
	if cfg.Auth.Mode == "header" {
		return infra.HeaderVerifier{}, nil
	}
	return infra.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.CredentialsFile)
}

func newLLM(ctx context.Context, cfg config.Config) (ai.LLMProvider, func(), error) {
	if cfg.AI.Provider != "gemini" {
		return ai.NewMockProvider(), func() {}, nil
	}
	p, err := ai.NewGeminiProvider(ctx, cfg.AI.GeminiKey, cfg.AI.Model)
	if err != nil {
		return nil, nil, err
	}
	return p, func() { _ = p.Close() }, nil
}

func newGeocoder(cfg config.Config, llm ai.LLMProvider) (advisory.Geocoder, error) {
	if cfg.Geocoder.Backend == "maps" {
		g, err := maps.NewGeocoder(cfg.Geocoder.MapsKey)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return advisory.NewLLMGeocoder(llm, cfg.AI.Timeout), nil
}
