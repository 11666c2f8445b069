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

	"github.com/gamesight/visualqa/internal/application"
	appanalysis "github.com/gamesight/visualqa/internal/application/analysis"
	appreports "github.com/gamesight/visualqa/internal/application/reports"
	apptriage "github.com/gamesight/visualqa/internal/application/triage"
	"github.com/gamesight/visualqa/internal/config"
	"github.com/gamesight/visualqa/internal/domain/consensus"
	"github.com/gamesight/visualqa/internal/domain/vision"
	openaiadapter "github.com/gamesight/visualqa/internal/infra/ai/openai"
	mysqlp "github.com/gamesight/visualqa/internal/infra/db/mysql"
	postgresp "github.com/gamesight/visualqa/internal/infra/db/postgres"
	"github.com/gamesight/visualqa/internal/infra/httpserver"
	"github.com/gamesight/visualqa/internal/infra/phashcache"
	minioStore "github.com/gamesight/visualqa/internal/infra/storage"
	"github.com/gamesight/visualqa/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if len(cfg.Analysis.Models) == 0 {
		log.Fatal("no vision models configured")
	}

	ctx := context.Background()

	// connect MySQL
	db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
	if err != nil {
		log.Fatalf("mysql connect error: %v", err)
	}
	defer db.Close()

	// init repos
	captureRepo := mysqlp.NewCaptureRepository(db)
	resultRepo := mysqlp.NewAnalysisRepository(db)
	feedbackRepo := mysqlp.NewFeedbackRepository(db)
	phashRepo := mysqlp.NewPhashRepository(db)
	reportRepo := mysqlp.NewReportRepository(db)

	var issueRepo consensus.Repository = mysqlp.NewIssueRepository(db)
	if dsn := cfg.Database.ArchiveDSN; dsn != "" {
		pg, err := postgresp.Connect(ctx, dsn)
		if err != nil {
			log.Fatalf("postgres archive connect error: %v", err)
		}
		defer pg.Close()
		issueRepo = postgresp.NewIssueMirror(issueRepo, postgresp.NewIssueRepository(pg))
		log.Println("issue archive mirror enabled")
	}

	// init minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	// perceptual hash cache, warmed from DB
	cache := phashcache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL, cfg.Cache.HammingThreshold, phashRepo)
	cache.Warm(ctx)
	log.Printf("phash cache warmed entries=%d", cache.Len())

	// vision adapters
	adapters := make([]vision.Adapter, 0, len(cfg.Analysis.Models))
	for _, m := range cfg.Analysis.Models {
		adapters = append(adapters, openaiadapter.NewAdapter(openaiadapter.Options{
			Name:           m.Name,
			APIKey:         m.APIKey,
			BaseURL:        m.BaseURL,
			Model:          m.Model,
			Timeout:        cfg.Analysis.ModelTimeout,
			PromptUSDPer1K: m.PromptUSDPer1K,
			OutputUSDPer1K: m.OutputUSDPer1K,
		}))
	}

	engine := consensus.NewEngine(cfg.ModelNames(), cfg.Analysis.Quorum)

	analysisSvc := &appanalysis.Service{
		Captures: captureRepo,
		Results:  resultRepo,
		Issues:   issueRepo,
		Feedback: feedbackRepo,
		Adapters: adapters,
		Engine:   engine,
		Cache:    cache,
		Hasher:   phashcache.NewDifferenceHasher(),
		Blobs:    store,
		Clock:    application.SystemClock{},
	}

	reportsSvc := &appreports.Service{
		Repo:           reportRepo,
		Issues:         issueRepo,
		Captures:       captureRepo,
		Costs:          resultRepo,
		Blobs:          store,
		Limiter:        middleware.NewTokenBucket(cfg.Reports.RatePerMinute, cfg.Reports.RatePerMinute),
		Clock:          application.SystemClock{},
		StorageTimeout: cfg.Reports.StorageTimeout,
	}
	reportsSvc.Queue()

	triageSvc := &apptriage.Service{
		Issues:   issueRepo,
		Feedback: feedbackRepo,
		Clock:    application.SystemClock{},
	}

	// background workers: report pool, retry sweep, retention sweep
	workerCtx, stopWorkers := context.WithCancel(ctx)
	if err := reportsSvc.Recover(workerCtx); err != nil {
		log.Printf("report recovery error: %v", err)
	}
	go reportsSvc.RunWorkers(workerCtx, cfg.Reports.MaxWorkers)
	go reportsSvc.RunRetentionSweep(workerCtx, cfg.Reports.RetentionSweep, cfg.Reports.Retention)
	go analysisSvc.RunRetrySweep(workerCtx, cfg.Analysis.RetrySweep)

	// init router
	handler := httpserver.NewRouter(analysisSvc, reportsSvc, triageSvc, httpserver.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		APIKeys:        cfg.Server.APIKeys,
		Health: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: db},
			"s3":       &middleware.PingHealthChecker{Target: store},
		},
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s models=%d", addr, len(adapters))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown: stop accepting, then let workers revert in-flight
	// jobs back to queued before exit
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	stopWorkers()

	// give workers a moment to persist queued reverts
	time.Sleep(time.Second)
}
