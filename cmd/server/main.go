package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"certify/internal/anchor"
	certhandler "certify/internal/certificate/handler"
	"certify/internal/certificate/identity"
	"certify/internal/certificate/metadata"
	"certify/internal/certificate/notify"
	"certify/internal/certificate/render"
	"certify/internal/certificate/service"
	"certify/internal/certificate/verify"
	"certify/internal/contentstore"
	minthandler "certify/internal/mint/handler"
	mintmetrics "certify/internal/mint/metrics"
	"certify/internal/mint/models"
	"certify/internal/mint/orchestrator"
	"certify/internal/mint/worker"
	"certify/internal/platform/config"
	"certify/internal/platform/health"
	"certify/internal/platform/logger"
	"certify/internal/platform/metrics"
	httptransport "certify/internal/transport/http"
	"certify/pkg/platform/middleware/admin"
	request "certify/pkg/platform/middleware/request"
)

const (
	shutdownTimeout  = 15 * time.Second
	poolStatsEvery   = 15 * time.Second
	notifyTimeout    = 10 * time.Second
	adminTokenIssuer = "certify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing certify",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"anchor_mode", cfg.Anchor.Mode,
		"queue_backend", cfg.Queue.Backend,
		"content_store", cfg.Content.Backend,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	checks := health.New(cfg.Environment)
	in, err := openInfra(ctx, cfg, reg, checks, log)
	if err != nil {
		return err
	}
	defer in.close()

	ledger, err := openAnchor(ctx, cfg, in, checks, log)
	if err != nil {
		return err
	}

	deriver, err := identity.New(cfg.Issuing.VerificationSecret, cfg.Issuing.IssuerName)
	if err != nil {
		return err
	}

	packagerOpts := []metadata.Option{metadata.WithIssuerURL(cfg.PublicURL)}
	if ledger != nil {
		network := ledger.Network()
		packagerOpts = append(packagerOpts, metadata.WithLedger(network.Name, network.ContractAddress))
	}
	packager := metadata.NewPackager(in.content, cfg.Issuing.VerificationBaseURL, cfg.Issuing.IssuerName, packagerOpts...)

	policy := models.Policy{
		High:               cfg.Queue.PriorityHigh,
		Normal:             cfg.Queue.PriorityNormal,
		Low:                cfg.Queue.PriorityLow,
		HighScoreThreshold: cfg.Queue.HighScoreThreshold,
	}
	mintMetrics := mintmetrics.New(reg)
	anchoring := orchestrator.New(ledger, in.queue,
		orchestrator.WithPolicy(policy),
		orchestrator.WithMintTimeout(cfg.Anchor.Timeout),
		orchestrator.WithMetrics(mintMetrics),
		orchestrator.WithLogger(log),
	)

	serviceOpts := []service.Option{
		service.WithJobs(in.queue),
		service.WithPassingScore(cfg.Issuing.PassingScore),
		service.WithFastCompletionHours(cfg.Issuing.FastCompletionHours),
		service.WithNotifier(buildNotifier(cfg, in, log)),
		service.WithMetrics(metrics.New(reg)),
		service.WithLogger(log),
	}
	if ledger != nil {
		serviceOpts = append(serviceOpts, service.WithLedger(ledger))
	}
	lifecycle := service.New(
		in.certificates,
		in.courses,
		deriver,
		packager,
		render.New(in.content, cfg.Issuing.IssuerName),
		anchoring,
		serviceOpts...,
	)

	verifyOpts := []verify.Option{
		verify.WithJobs(in.queue),
		verify.WithMetrics(verify.NewMetrics(reg)),
		verify.WithLogger(log),
	}
	if ledger != nil && cfg.Anchor.LiveVerify {
		verifyOpts = append(verifyOpts, verify.WithLiveLedger(ledger, cfg.Anchor.Timeout))
	}
	verifier := verify.New(in.certificates, cfg.Issuing.IssuerName, verifyOpts...)

	mintWorker := buildWorker(cfg, in, ledger, policy, mintMetrics, log)

	certificates := certhandler.New(verifier, lifecycle, log)
	queueAdmin := minthandler.New(in.queue, log)
	router := httptransport.NewRouter(httptransport.Routes{
		Public: []httptransport.PublicRoutes{checks, certificates, contentstore.NewHandler(in.content, log)},
		Admin:  []httptransport.AdminRoutes{certificates, queueAdmin},
		Stream: []httptransport.StreamRoutes{queueAdmin},

		Tokens:   admin.NewTokens(cfg.Admin.JWTSecret, adminTokenIssuer, cfg.Admin.TokenTTL),
		Gatherer: reg,
		Metrics:  request.NewMetrics(reg),
	}, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	if mintWorker != nil {
		if err := mintWorker.Start(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr, "checks", checks.Checks())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if in.redis != nil {
		g.Go(func() error {
			ticker := time.NewTicker(poolStatsEvery)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					in.redis.RecordPoolStats()
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if mintWorker != nil {
			if stopErr := mintWorker.Stop(shutdownCtx); stopErr != nil {
				log.Error("mint worker did not stop cleanly", "error", stopErr)
			}
		}
		return err
	})

	return g.Wait()
}

// buildNotifier fans issuance events out to every configured channel.
func buildNotifier(cfg *config.Server, in *infra, log *slog.Logger) *notify.Fanout {
	opts := []notify.FanoutOption{
		notify.WithTimeout(notifyTimeout),
		notify.WithLogger(log),
	}
	if in.producer != nil {
		opts = append(opts, notify.WithChannel("in_app", notify.NewInApp(in.producer, cfg.Kafka.NotifyTopic)))
	}
	if cfg.Email.SendGridAPIKey != "" {
		email, err := notify.NewEmail(notify.EmailConfig{
			APIKey:    cfg.Email.SendGridAPIKey,
			FromEmail: cfg.Email.From,
			FromName:  cfg.Issuing.IssuerName,
		})
		if err != nil {
			log.Warn("email notifications disabled", "error", err)
		} else {
			opts = append(opts, notify.WithChannel("email", email))
		}
	}
	fanout := notify.NewFanout(opts...)
	log.Info("notification channels ready", "channels", fanout.Channels())
	return fanout
}

// buildWorker returns nil when anchoring is disabled; queued jobs then wait
// for a later start with a ledger configured.
func buildWorker(cfg *config.Server, in *infra, ledger anchor.Client, policy models.Policy, m *mintmetrics.Metrics, log *slog.Logger) *worker.Worker {
	if ledger == nil {
		return nil
	}
	hostname, _ := os.Hostname()
	return worker.New(in.queue, ledger, in.certificates,
		worker.WithWorkers(cfg.Queue.Workers),
		worker.WithPollInterval(cfg.Queue.PollInterval),
		worker.WithLease(cfg.Queue.LeaseTimeout),
		worker.WithMintTimeout(cfg.Anchor.Timeout),
		worker.WithMaxAutoAttempts(cfg.Queue.MaxAutoAttempts),
		worker.WithSchedules(cfg.Queue.ReclaimSchedule, cfg.Queue.RetrySchedule),
		worker.WithPolicy(policy),
		worker.WithName(hostname),
		worker.WithMetrics(m),
		worker.WithLogger(log),
	)
}
