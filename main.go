package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nystya/txgroup/config"
	"github.com/Nystya/txgroup/controller"
	"github.com/Nystya/txgroup/logger"
	"github.com/Nystya/txgroup/metrics"
	"github.com/Nystya/txgroup/repository/database"
	"github.com/Nystya/txgroup/repository/escalation"
	"github.com/Nystya/txgroup/repository/exception"
	"github.com/Nystya/txgroup/repository/messaging"
	"github.com/Nystya/txgroup/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func newLedger(ctx context.Context, cfg *config.Config) (exception.Store, error) {
	switch cfg.Ledger {
	case config.LedgerMemory:
		return exception.NewMemoryStore(), nil
	case config.LedgerRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return exception.NewRedisStore(client), nil
	case config.LedgerPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}

		store := exception.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}

		return store, nil
	default:
		return exception.NewWriteAheadLog(cfg.WalConfig)
	}
}

func main() {
	cfg := config.NewConfig()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Initializing exception ledger...", zap.String("backend", cfg.Ledger))

	ledger, err := newLedger(ctx, cfg)
	if err != nil {
		log.Fatal("Could not open exception ledger", zap.Error(err))
	}
	defer ledger.Close()

	var publisher escalation.Publisher = escalation.NopPublisher{}
	if brokers := escalation.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		log.Info("Publishing compensation events", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopic))
		publisher = escalation.NewKafkaPublisher(brokers, cfg.KafkaTopic)
	}
	defer publisher.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	rpcClient := messaging.NewGRPCClient(&messaging.GRPCClientConfig{Timeout: cfg.NotifyTimeout}, log)
	defer rpcClient.Close()

	registry := database.NewMemoryRegistry()

	manager := service.NewSimpleTransactionManager(service.ManagerDeps{
		Registry:       registry,
		Ledger:         ledger,
		Client:         messaging.NewNotifyClient(rpcClient),
		FailureHandler: service.NewFailureHandler(ledger, publisher, m, log),
		TxLogger:       logger.NewZapTxLogger(log),
		Metrics:        m,
		Logger:         log,
		NotifyWorkers:  cfg.NotifyWorkers,
	})

	log.Info("Initializing participant server...")

	participant := service.NewUnitParticipant(map[string]service.UnitHandler{
		"log": service.LoggingUnitHandler{Logger: log},
	}, log)

	lis, err := net.Listen("tcp", "127.0.0.1:"+cfg.Port)
	if err != nil {
		log.Fatal("Failed to start listening", zap.Error(err))
	}

	grpcServer := grpc.NewServer()
	messaging.RegisterNotifyServer(grpcServer, controller.NewNotifyServer(participant, log))

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("Failed to serve", zap.Error(err))
			stop()
		}
	}()

	adminServer := &http.Server{
		Addr: cfg.AdminAddr,
		Handler: controller.NewAdminRouter(controller.AdminDeps{
			Manager:  manager,
			Registry: registry,
			Recorder: ledger,
			Metrics:  metrics.Handler(reg),
			Logger:   log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Admin server stopped", zap.Error(err))
			stop()
		}
	}()

	log.Info("Started", zap.String("port", cfg.Port), zap.String("admin", cfg.AdminAddr))

	<-ctx.Done()

	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = adminServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
}
