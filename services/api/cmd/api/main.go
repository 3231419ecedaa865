package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridion/carbon-market/services/api/internal/amount"
	"github.com/veridion/carbon-market/services/api/internal/app"
	"github.com/veridion/carbon-market/services/api/internal/clock"
	"github.com/veridion/carbon-market/services/api/internal/config"
	"github.com/veridion/carbon-market/services/api/internal/ledger"
	"github.com/veridion/carbon-market/services/api/internal/notify"
	"github.com/veridion/carbon-market/services/api/internal/recon"
	"github.com/veridion/carbon-market/services/api/internal/storage/postgres"
	transporthttp "github.com/veridion/carbon-market/services/api/internal/transport/http"
	"github.com/veridion/carbon-market/services/api/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := log.Default()

	cfg, err := config.Load(logger)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	clk := clock.NewSystem()

	var notifier notify.Notifier
	if cfg.SMTPAddr != "" {
		notifier = notify.NewSMTP(cfg.SMTPAddr, cfg.SMTPFrom)
	} else {
		logger.Printf("WARN: SMTP_ADDR not set, notifications go to the log")
		notifier = notify.NewLog(logger)
	}

	listingRepo := postgres.NewListingRepository(pool)
	listingSvc := app.NewListingService(listingRepo, clk)
	orderRepo := postgres.NewOrderRepository(pool)
	orderSvc := app.NewOrderService(orderRepo, amount.New(nil), clk, cfg)
	finalizeRepo := postgres.NewFinalizeRepository(pool)
	finalizeSvc := app.NewFinalizeService(finalizeRepo, notifier, clk, logger, cfg.OperatorEmail)
	certRepo := postgres.NewCertificateRepository(pool)
	certSvc := app.NewCertificateService(certRepo)

	if n, err := orderSvc.ExpireStale(startupCtx); err != nil {
		log.Fatalf("expire stale orders: %v", err)
	} else if n > 0 {
		logger.Printf("expired %d stale orders at startup", n)
	}

	lookup := ledger.NewExplorerClient(cfg.ExplorerBaseURL, cfg.ExplorerAPIKey, cfg.MinConfirmations, nil)
	watcher := recon.New(lookup, finalizeSvc, orderRepo, clk, logger, cfg.PollInterval, cfg.PollInitialDelay)
	if err := watcher.Resume(startupCtx); err != nil {
		log.Fatalf("resume payment watches: %v", err)
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watcher.Run(stopCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/listings", transporthttp.HandleListings(listingSvc))
	mux.Handle("/listings/", transporthttp.HandleGetListing(listingSvc))
	mux.Handle("/orders", transporthttp.HandleCreateOrder(orderSvc, watcher))
	mux.Handle("/orders/", transporthttp.HandleOrderActions(orderSvc, watcher))
	mux.Handle("/certificates", transporthttp.HandleListCertificates(certSvc))
	mux.Handle("/certificates/", transporthttp.HandleCertificateActions(certSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	log.Printf("api listening on :%s", cfg.Port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	case <-stopCtx.Done():
		log.Printf("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server shutdown error: %v", err)
	}
	log.Printf("server stopped")
}
