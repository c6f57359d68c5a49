package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/stockflow-io/stockflow/internal/config"
	"github.com/stockflow-io/stockflow/internal/events"
	"github.com/stockflow-io/stockflow/internal/order/application"
	orderhttp "github.com/stockflow-io/stockflow/internal/order/infrastructure/http"
	"github.com/stockflow-io/stockflow/internal/order/infrastructure/httpclient"
	orderkafka "github.com/stockflow-io/stockflow/internal/order/infrastructure/kafka"
	orderpg "github.com/stockflow-io/stockflow/internal/order/infrastructure/postgres"
	"github.com/stockflow-io/stockflow/internal/principal"
	"github.com/stockflow-io/stockflow/pkg/idempotency"
	"github.com/stockflow-io/stockflow/pkg/logging"
	"github.com/stockflow-io/stockflow/pkg/notify"
	"github.com/stockflow-io/stockflow/pkg/outbox"
	"github.com/stockflow-io/stockflow/pkg/postgres"
	"github.com/stockflow-io/stockflow/pkg/shutdown"
	"github.com/stockflow-io/stockflow/pkg/tracing"
)

func main() {
	log := logging.New("order-service")
	cfg := config.Load()

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "order-service", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("tracing init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = tp.Shutdown(shutdownCtx)
	}()

	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("postgres connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	repo := orderpg.NewRepository(pool)
	products := httpclient.NewProductClient(log, cfg.ProductsBaseURL)
	inventory := httpclient.NewInventoryClient(log, cfg.InventoryBaseURL)
	notifier := notify.NewPublisher(log, rdb)
	svc := application.NewService(log, repo, products, inventory, notifier)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	defer writer.Close()

	relay := outbox.NewRelay(log,
		outbox.NewPgStore(pool),
		outbox.NewDispatcher(log, writer, events.TopicOrders),
		cfg.RelayID)

	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = "order-service"
	}
	consumer := orderkafka.NewConsumer(log, cfg.KafkaBrokers, groupID,
		idempotency.NewStore(rdb, 24*time.Hour), svc)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(principal.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	orderhttp.NewHandler(log, svc).Routes(r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return relay.Run(ctx)
	})
	g.Go(func() error {
		return consumer.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("service exited with error", "err", err)
		os.Exit(1)
	}
	log.Info("service stopped")
}
