package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"monitoring-pipeline/adapters"
	"monitoring-pipeline/ai"
	"monitoring-pipeline/config"
	"monitoring-pipeline/database"
	"monitoring-pipeline/handlers"
	"monitoring-pipeline/media"
	"monitoring-pipeline/metrics"
	"monitoring-pipeline/rabbitmq"
	"monitoring-pipeline/scheduler"
	"monitoring-pipeline/secrets"
	"monitoring-pipeline/service"
)

func main() {
	// Load configuration
	cfg := config.Load()

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	metrics.Register()

	// Initialize database
	db, err := database.New(cfg.DSN())
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.CreateTables(); err != nil {
		log.Fatalf("failed to create tables: %v", err)
	}

	// Credentials resolve through the key store at fetch/analyze time,
	// so a key rotated through the API applies without a restart. The
	// boot check only verifies the pipeline can analyze at all.
	keys := secrets.NewStore(db.DB())
	keyFor := func(service string) adapters.KeyFunc {
		return func() string {
			key, err := keys.GetActiveKey(service)
			if err != nil {
				log.Errorf("failed to load %s key: %v", service, err)
				return ""
			}
			return key
		}
	}
	openAIKey := mustKey(keys, secrets.ServiceOpenAI)
	deepSeekKey := mustKey(keys, secrets.ServiceDeepSeek)
	if openAIKey == "" && deepSeekKey == "" {
		log.Fatal("no AI provider key configured")
	}

	// Initialize platform adapters
	registry := adapters.NewRegistry(
		adapters.NewXAdapter(keyFor(secrets.ServiceXAPI), cfg.MediaTimeout),
		adapters.NewInstagramAdapter(keyFor(secrets.ServiceApify), cfg.AIRequestTimeout),
		adapters.NewWebSearchAdapter(keyFor(secrets.ServiceSerpAPI), cfg.MediaTimeout),
	)

	// Initialize AI analysis. Both providers register; an unconfigured
	// one fails its analyses with a clear error until a key is stored.
	providers := []ai.Provider{
		ai.NewOpenAIClient(keyFor(secrets.ServiceOpenAI), cfg.AIRequestTimeout),
		ai.NewDeepSeekClient(keyFor(secrets.ServiceDeepSeek), cfg.AIRequestTimeout),
	}
	analyzer := ai.NewAnalyzer(providers, ai.RetryPolicy{
		MaxRetries:  cfg.AIMaxRetries,
		InitialWait: cfg.AIInitialRetryWait,
		MaxWait:     cfg.AIMaxRetryWait,
	}, cfg.AlertThreshold, cfg.MaxImagesPerCheck)

	downloader := media.NewDownloader(cfg.MediaBasePath, cfg.MaxMediaFileSize, cfg.MediaTimeout)

	svc := service.New(db, registry, analyzer, downloader, cfg)

	// Connect to the job queue when configured; without a broker checks
	// run inline in this process.
	var queue *rabbitmq.Client
	var publisher scheduler.JobPublisher
	if cfg.AMQPUrl != "" {
		queue, err = rabbitmq.New(cfg.AMQPUrl, cfg.CheckQueue)
		if err != nil {
			log.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer queue.Close()
		publisher = queue
	}

	sched := scheduler.New(db, svc, publisher,
		cfg.SchedulerInterval, cfg.SoftCheckTimeout, cfg.HardCheckTimeout)

	consumerStop := make(chan struct{})
	if queue != nil {
		go func() {
			err := queue.Consume(cfg.QueueConcurrency, func(job *rabbitmq.CheckJob) error {
				return sched.RunCheck(job)
			}, consumerStop)
			if err != nil {
				log.Errorf("queue consumer stopped: %v", err)
			}
		}()
	}

	// Setup HTTP server
	router := gin.Default()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.New(svc, sched, keys).Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	sched.Start()

	go func() {
		log.Infof("starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	sched.Stop()
	close(consumerStop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Info("server exited")
}

func mustKey(store *secrets.Store, service string) string {
	key, err := store.GetActiveKey(service)
	if err != nil {
		log.Fatalf("failed to load %s key: %v", service, err)
	}
	return key
}
