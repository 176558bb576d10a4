package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalithlochan/tandem/internal/api"
	"github.com/lalithlochan/tandem/internal/circuitbreaker"
	"github.com/lalithlochan/tandem/internal/config"
	"github.com/lalithlochan/tandem/internal/db"
	"github.com/lalithlochan/tandem/internal/directory"
	"github.com/lalithlochan/tandem/internal/nudge"
	"github.com/lalithlochan/tandem/internal/observ"
	"github.com/lalithlochan/tandem/internal/redis"
	"github.com/lalithlochan/tandem/internal/slack"
	"github.com/lalithlochan/tandem/internal/sns"
	"github.com/lalithlochan/tandem/internal/sqs"
	"github.com/lalithlochan/tandem/internal/survey"
	"github.com/lalithlochan/tandem/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting tandem gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Redis only adds replay suppression and rate limiting; everything
	// still works without it.
	var deduper nudge.Deduper
	var limiter api.Limiter
	var redisPinger api.Pinger
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, callback dedupe and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	} else {
		defer redisClient.Close()
		redisPinger = redisClient
		deduper = redis.NewIdempotencyService(redisClient, redis.ReplayTTL, logger)
		limiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.DispatchRateLimit,
			Window: time.Minute,
		})
	}

	slackClient := slack.New(slack.Config{
		APIURL:  cfg.SlackAPIURL,
		Timeout: time.Duration(cfg.SlackTimeout) * time.Second,
	}, logger)
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("slack"), logger)
	messenger := circuitbreaker.NewProtectedMessenger(slackClient, breaker, logger)

	dir := directory.New(repo, slackClient, logger)

	var templates nudge.TemplateSource
	if cfg.TemplatesFile != "" {
		templates = nudge.NewFileTemplates(cfg.TemplatesFile)
		logger.Info("loading nudge templates from file", zap.String("path", cfg.TemplatesFile))
	} else {
		templates = nudge.NewDBTemplates(repo, logger)
	}

	scanner := nudge.NewScanner(repo, nudge.DefaultScannerConfig(), logger)
	dispatcherCfg := nudge.DefaultDispatcherConfig()
	dispatcherCfg.WeeklyDigestOnly = cfg.WeeklyDigestOnly
	dispatcher := nudge.NewDispatcher(repo, dir, messenger, scanner, templates, repo, dispatcherCfg, logger)
	recorder := nudge.NewRecorder(cfg.SlackSigningSecret, repo, dir, messenger, deduper, logger)

	policy := survey.DefaultPolicy()
	if cfg.GrowSurveyMilestones != nil {
		policy.GrowKinds = cfg.GrowSurveyMilestones
	}
	surveys := survey.NewService(repo, policy, logger)

	var reporter worker.Reporter
	if cfg.SNSReportTopicARN != "" {
		r, err := sns.NewReporter(ctx, cfg.SNSReportTopicARN, cfg.AWSEndpoint, cfg.AWSRegion)
		if err != nil {
			logger.Warn("sns reporter unavailable, cycle reports disabled", zap.Error(err))
		} else {
			reporter = r
		}
	}
	runner := worker.NewRunner(dispatcher, reporter, logger)

	handler := api.NewHandler(logger, api.Deps{
		Runner:    runner,
		Callbacks: recorder,
		Surveys:   surveys,
		Directory: dir,
		Nudges:    repo,
		Health:    repo,
		Redis:     redisPinger,
		Breaker:   breaker,
	})

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewRouter(handler, api.RouterConfig{
			PortalJWTSecret: []byte(cfg.PortalJWTSecret),
			AllowedOrigins:  cfg.PortalAllowedOrigins,
			DispatchToken:   cfg.DispatchToken,
			Limiter:         limiter,
		}, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // a manual dispatch runs a whole cycle
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil
	})

	if cfg.DispatchInterval > 0 {
		w := worker.New(runner, worker.Config{Interval: cfg.DispatchInterval}, logger)
		g.Go(func() error {
			w.Start(gctx)
			return nil
		})
	}

	if cfg.SQSTriggerQueueURL != "" {
		consumer, err := sqs.NewConsumer(ctx, sqs.Config{
			Region:   cfg.AWSRegion,
			QueueURL: cfg.SQSTriggerQueueURL,
			Endpoint: cfg.AWSEndpoint,
		}, logger)
		if err != nil {
			logger.Warn("sqs trigger unavailable", zap.Error(err))
		} else {
			trigger := worker.NewTrigger(consumer, runner, logger)
			g.Go(func() error {
				trigger.Start(gctx)
				return nil
			})
		}
	}

	return g.Wait()
}
