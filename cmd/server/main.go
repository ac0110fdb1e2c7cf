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

	"purchase-agent/config"
	"purchase-agent/internal/api"
	"purchase-agent/internal/broker"
	"purchase-agent/internal/browser"
	"purchase-agent/internal/checkout"
	"purchase-agent/internal/decision"
	"purchase-agent/internal/discovery"
	"purchase-agent/internal/order"
	"purchase-agent/internal/redisclient"
	"purchase-agent/internal/scraper"
	"purchase-agent/internal/service"
	"purchase-agent/internal/store"
	"purchase-agent/internal/util"
	"purchase-agent/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting purchase agent")

	tp, err := util.InitTracer("purchase-agent", cfg.Observ.JaegerEndpoint)
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

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicStages)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	scraperOpts := scraper.Options{
		UserAgent:   cfg.Scrape.UserAgent,
		Timeout:     cfg.Scrape.PageLoadTimeout,
		WaitTimeout: cfg.Scrape.WaitTimeout,
	}
	registry := scraper.NewRegistry(
		scraper.NewTunisianet(scraperOpts),
		scraper.NewMegaPC(scraperOpts),
	)
	coordinator := discovery.NewCoordinator(db, redisClient, registry, cfg.Scrape)

	oracle := decision.NewGeminiOracle(cfg.Decision)
	engine := decision.NewEngine(oracle)

	states := order.NewStateMachine(db)

	chromeFactory := browser.NewChromeFactory(cfg.Scrape.UserAgent, true)
	automator := checkout.NewAutomator(chromeFactory, cfg.Checkout)

	var payments checkout.Provider
	if cfg.Checkout.PaymentEndpoint != "" {
		payments = checkout.NewHTTPProvider(cfg.Checkout)
	}

	pipeline := service.NewPipeline(db, states, coordinator, engine, automator, payments, eventPublisher, cfg)
	orderService := service.NewOrderService(db, states, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	stageConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicStages, cfg.Kafka.ConsumerGroup)
	pipelineWorker := worker.NewPipelineWorker(stageConsumer, pipeline)
	go func() {
		if err := pipelineWorker.Start(workerCtx); err != nil {
			log.Printf("Pipeline worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(orderService)
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
	pipelineWorker.Stop()

	log.Println("Server exited")
}
