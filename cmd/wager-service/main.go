package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

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
	whttp "github.com/radieske/stream-wager-platform/internal/wager-service/http"
	"github.com/radieske/stream-wager-platform/internal/wager-service/odds"
	"github.com/radieske/stream-wager-platform/internal/wager-service/producer"
	"github.com/radieske/stream-wager-platform/internal/wager-service/pubsub"
	"github.com/radieske/stream-wager-platform/internal/wager-service/repo"
	"github.com/radieske/stream-wager-platform/internal/wager-service/scheduler"
	"github.com/radieske/stream-wager-platform/internal/wager-service/settle"
	"github.com/radieske/stream-wager-platform/internal/wager-service/store"
	"github.com/radieske/stream-wager-platform/internal/wager-service/ws"
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

	// Redis (Outcome Store)
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	st := store.NewRedis(rdb, store.DefaultOptions())

	// Postgres (auditoria; opcional — o serviço sobe sem ele)
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

	cat := catalog.Default()
	calc := odds.NewCalculator(log, st, odds.DefaultParams())
	reg := settle.NewRegistry()

	eng := engine.New(log, st, cat, calc, reg, engine.Config{
		DefaultWindow: cfg.DefaultBetWindow,
		MaxWindow:     cfg.MaxBetWindow,
		EvalWorkers:   cfg.EvalWorkers,
	})
	eng.SetPublisher(publ)
	if archiver != nil {
		eng.SetArchiver(archiver)
	}

	// scheduler de expiração: timers in-process + varredura do conjunto
	// persistido de deadlines (cobre restarts)
	sched := scheduler.New(log, st, time.Second)
	sched.SetExpirer(eng)
	eng.SetScheduler(sched)
	go sched.Run(ctx)

	betsPlaced := promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_bets_placed_total", Help: "Apostas aceitas",
	})
	betsSettled := promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_bets_settled_total", Help: "Apostas liquidadas por veredito",
	}, []string{"verdict"})
	betsExpired := promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_bets_expired_total", Help: "Apostas expiradas com refund",
	})
	betsCancelled := promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_bets_cancelled_total", Help: "Apostas canceladas",
	})
	eng.OnPlaced = betsPlaced.Inc
	eng.OnSettled = func(v string) { betsSettled.WithLabelValues(v).Inc() }
	eng.OnExpired = betsExpired.Inc
	eng.OnCancelled = betsCancelled.Inc

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	// WS hub: clientes assinam streams e recebem as transições de apostas
	hub := ws.NewHub(func(*http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, rdb, hub)

	api := whttp.NewServer(log, eng, cat)
	rootMux := http.NewServeMux()
	rootMux.Handle("/", api.Router())
	rootMux.HandleFunc("/ws", hub.HandleWS)
	apiSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: rootMux,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = apiSrv.Shutdown(shutCtx)
	}()

	log.Info("wager-service listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
