package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-platform/internal/shared/cache"
	"github.com/radieske/stream-wager-platform/internal/shared/config"
	"github.com/radieske/stream-wager-platform/internal/shared/db"
	"github.com/radieske/stream-wager-platform/internal/shared/kafka"
	"github.com/radieske/stream-wager-platform/internal/shared/logger"
	"github.com/radieske/stream-wager-platform/internal/shared/metrics"
	"github.com/radieske/stream-wager-platform/internal/wager-service/catalog"
	"github.com/radieske/stream-wager-platform/internal/wager-service/engine"
	"github.com/radieske/stream-wager-platform/internal/wager-service/ingress"
	"github.com/radieske/stream-wager-platform/internal/wager-service/odds"
	"github.com/radieske/stream-wager-platform/internal/wager-service/producer"
	"github.com/radieske/stream-wager-platform/internal/wager-service/pubsub"
	"github.com/radieske/stream-wager-platform/internal/wager-service/repo"
	"github.com/radieske/stream-wager-platform/internal/wager-service/settle"
	"github.com/radieske/stream-wager-platform/internal/wager-service/store"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	st := store.NewRedis(rdb, store.DefaultOptions())

	var archiver engine.Archiver
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Warn("pg unavailable, audit disabled", zap.Error(err))
	} else {
		defer pg.Close()
		archiver = repo.NewPostgres(pg)
	}

	placedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer placedWriter.Close()
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer settledWriter.Close()

	publ := producer.NewKafkaPublisher(placedWriter, settledWriter)
	publ.Broadcast = pubsub.NewRedisBroadcaster(rdb)
	publ.Channel = cfg.RedisPubSubChannel

	// o worker só liquida: não agenda expirações nem aceita apostas
	eng := engine.New(log, st, catalog.Default(),
		odds.NewCalculator(log, st, odds.DefaultParams()),
		settle.NewRegistry(), engine.Config{
			DefaultWindow: cfg.DefaultBetWindow,
			MaxWindow:     cfg.MaxBetWindow,
			EvalWorkers:   cfg.EvalWorkers,
		})
	eng.SetPublisher(publ)
	if archiver != nil {
		eng.SetArchiver(archiver)
	}

	eventsConsumed := promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_events_consumed_total", Help: "Eventos de analytics lidos",
	})
	consumeErrors := promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_consume_errors_total", Help: "Erros de consumo por fase",
	}, []string{"phase"})
	betsSettled := promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_bets_settled_total", Help: "Apostas liquidadas por veredito",
	}, []string{"verdict"})
	eng.OnSettled = func(v string) { betsSettled.WithLabelValues(v).Inc() }

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicAnalyticsEvents, "settlement-worker")
	defer reader.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicAnalyticsEventsDLQ)
	defer dlq.Close()

	consumer := &ingress.Consumer{
		Log:        log,
		Reader:     reader,
		DLQ:        dlq,
		Handler:    eng,
		OnConsumed: eventsConsumed.Inc,
		OnError:    func(phase string) { consumeErrors.WithLabelValues(phase).Inc() },
	}

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	log.Info("settlement-worker consuming", zap.String("topic", cfg.TopicAnalyticsEvents))
	if err := consumer.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal("consumer", zap.Error(err))
	}
	log.Info("settlement-worker stopped")
}
