package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vogiaan1904/realtime-gateway/config"
	grpcSvc "github.com/vogiaan1904/realtime-gateway/internal/delivery/grpc"
	httpDelivery "github.com/vogiaan1904/realtime-gateway/internal/delivery/http"
	"github.com/vogiaan1904/realtime-gateway/internal/delivery/kafka/consumer"
	"github.com/vogiaan1904/realtime-gateway/internal/delivery/kafka/producer"
	natsDelivery "github.com/vogiaan1904/realtime-gateway/internal/delivery/nats"
	"github.com/vogiaan1904/realtime-gateway/internal/gateway"
	"github.com/vogiaan1904/realtime-gateway/internal/infra/nats"
	"github.com/vogiaan1904/realtime-gateway/internal/infra/postgres"
	"github.com/vogiaan1904/realtime-gateway/internal/infra/redis"
	"github.com/vogiaan1904/realtime-gateway/internal/metrics"
	pgRepo "github.com/vogiaan1904/realtime-gateway/internal/repository/postgres"
	repo "github.com/vogiaan1904/realtime-gateway/internal/repository/redis"
	"github.com/vogiaan1904/realtime-gateway/internal/service"
	"github.com/vogiaan1904/realtime-gateway/internal/sfu"
	"github.com/vogiaan1904/realtime-gateway/pkg/clock"
	pkgKafka "github.com/vogiaan1904/realtime-gateway/pkg/kafka"
	pkgLog "github.com/vogiaan1904/realtime-gateway/pkg/logger"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})

	instanceID := uuid.NewString()
	ctx = l.With(ctx, "instance_id", instanceID)

	redisCli, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
	}
	defer redis.Disconnect(redisCli)

	pgPool, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		l.Fatalf(ctx, "Failed to connect to Postgres: %v", err)
	}
	defer postgres.Disconnect(pgPool)

	natsConn, err := nats.Connect(cfg.NATS)
	if err != nil {
		l.Fatalf(ctx, "Failed to connect to NATS: %v", err)
	}
	defer nats.Disconnect(natsConn)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	clk := clock.Real()

	// Repositories
	ssRepo := repo.NewRedisSessionRepository(redisCli, l)
	presenceRepo := repo.NewRedisPresenceRepository(redisCli, l)
	scheduleRepo := repo.NewRedisScheduleRepository(redisCli, l)
	lockRepo := repo.NewRedisLockRepository(redisCli, l)
	voiceRepo := repo.NewRedisVoiceRepository(redisCli, l)
	spaceRepo := pgRepo.NewPgSpaceRepository(pgPool, l)

	// Kafka is optional; without it voice state stays local to this instance.
	var (
		bus  service.EventBus
		cons *consumer.Consumer
	)
	registry := gateway.NewRegistry()

	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.Voice.Secret, cfg.Voice.SessionTTL, clk)
	debounce := service.NewDebouncer(clk)
	presenceStore := service.NewPresenceStore(presenceRepo, cfg.Presence, l)
	stream := natsDelivery.NewStream(natsConn, l)

	router, err := sfu.NewPionRouter(cfg.Voice.ICEServers, l)
	if err != nil {
		l.Fatalf(ctx, "Failed to initialize SFU router: %v", err)
	}
	defer router.Close()
	rooms := sfu.NewManager(router, l)

	if cfg.Kafka.Enabled {
		kafkaSyncProd, err := pkgKafka.NewProducer(pkgKafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RetryMax:     cfg.Kafka.ProducerRetryMax,
			RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
		})
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		prod := producer.NewProducer(kafkaSyncProd, l)
		defer prod.Close()
		bus = prod
	}

	// Services
	ssSvc := service.NewSessionService(ssRepo, tokens, clk, l, cfg.Gateway.SessionTTL)
	listSvc := service.NewMemberListService(spaceRepo, presenceStore, registry, stream, debounce, l, cfg.Gateway)
	presenceSvc := service.NewPresenceService(presenceStore, presenceRepo, scheduleRepo, lockRepo, registry, listSvc, debounce, clk, m, l, cfg.Presence, instanceID)
	voiceSvc := service.NewVoiceService(voiceRepo, spaceRepo, lockRepo, tokens, bus, rooms, registry, clk, m, l, cfg.Voice, instanceID)

	if cfg.Kafka.Enabled {
		kafkaConsGr, err := pkgKafka.NewConsumer(pkgKafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.ConsumerGroupID + "-" + instanceID,
		})
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka consumer: %v", err)
		}
		cons = consumer.NewConsumer(kafkaConsGr, voiceSvc, listSvc, l)
	}

	gw := gateway.NewServer(cfg.Gateway, gateway.Services{
		Sessions: ssSvc,
		Presence: presenceSvc,
		Lists:    listSvc,
		Voice:    voiceSvc,
	}, registry, clk, m, l)

	// http server
	h := httpDelivery.NewHandler(voiceSvc, rooms, registry, l)
	httpSrv := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      httpDelivery.NewRouter(h, gw, reg, l),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// gRPC server
	health := grpcSvc.NewHealthService(l)
	gRpcSrv := grpc.NewServer()
	health.Register(gRpcSrv)
	lnr, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRpcPort))
	if err != nil {
		l.Fatalf(ctx, "gRPC server failed to listen: %v", err)
	}

	if err := presenceSvc.Start(ctx); err != nil {
		l.Fatalf(ctx, "Failed to start presence service: %v", err)
	}
	if err := voiceSvc.Start(ctx); err != nil {
		l.Fatalf(ctx, "Failed to start voice service: %v", err)
	}
	if cons != nil {
		if err := cons.Start(ctx); err != nil {
			l.Fatalf(ctx, "Failed to start Kafka consumer: %v", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Infof(ctx, "gRPC server is listening on port: %d", cfg.Server.GRpcPort)
		return gRpcSrv.Serve(lnr)
	})

	g.Go(func() error {
		l.Infof(ctx, "HTTP server is listening on: %s", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	health.SetServing(true)

	g.Go(func() error {
		<-gctx.Done()
		l.Info(ctx, "Server shutting down...")

		health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := gw.Shutdown(shutdownCtx); err != nil {
			l.Warnf(ctx, "Gateway shutdown: %v", err)
		}
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			l.Warnf(ctx, "HTTP shutdown: %v", err)
		}
		gRpcSrv.GracefulStop()

		if cons != nil {
			if err := cons.Close(); err != nil {
				l.Warnf(ctx, "Kafka consumer close: %v", err)
			}
		}
		if err := presenceSvc.Stop(); err != nil {
			l.Warnf(ctx, "Presence service stop: %v", err)
		}
		if err := voiceSvc.Stop(); err != nil {
			l.Warnf(ctx, "Voice service stop: %v", err)
		}
		rooms.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		l.Errorf(ctx, "Server exited with error: %v", err)
		return
	}

	l.Info(ctx, "Server exited")
}
