package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-reconciler/config"
	"stock-reconciler/internal/api"
	"stock-reconciler/internal/broker"
	"stock-reconciler/internal/ledger"
	"stock-reconciler/internal/notify"
	"stock-reconciler/internal/reconcile"
	"stock-reconciler/internal/redisclient"
	"stock-reconciler/internal/store"
	"stock-reconciler/internal/util"
	"stock-reconciler/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting stock reconciler")

	tp, err := util.InitTracer("stock-reconciler", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	lifecycleProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicLifecycle)
	defer lifecycleProducer.Close()

	notificationProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer notificationProducer.Close()
	log.Println("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(lifecycleProducer)
	stockLedger := ledger.NewLedger(db, redisClient)
	sink := notify.NewKafkaSink(notificationProducer)

	engine := reconcile.NewEngine(
		stockLedger,
		db,
		sink,
		eventPublisher,
		cfg.Business.GatedMethod,
		cfg.Business.StockManaged,
	)

	ctx := context.Background()
	if err := stockLedger.SyncStockToRedis(ctx); err != nil {
		log.Printf("Failed to sync stock levels to Redis: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	lifecycleConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicLifecycle, cfg.Kafka.ConsumerGroup)
	lifecycleWorker := worker.NewLifecycleWorker(lifecycleConsumer, engine, db, redisClient)
	go func() {
		if err := lifecycleWorker.Start(workerCtx); err != nil {
			log.Printf("Lifecycle worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(eventPublisher, db, stockLedger)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	lifecycleWorker.Stop()

	log.Println("Server exited")
}
