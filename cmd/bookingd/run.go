package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/bookingd/internal/httpapi"
	"github.com/MarkoPoloResearchLab/bookingd/internal/notify"
	"github.com/MarkoPoloResearchLab/bookingd/internal/paystack"
	"github.com/MarkoPoloResearchLab/bookingd/internal/refgen"
	"github.com/MarkoPoloResearchLab/bookingd/internal/telemetry"
	"github.com/MarkoPoloResearchLab/bookingd/internal/worker"
	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const drainTimeout = 10 * time.Second

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			logger.Warn("database close", zap.Error(closeErr))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return err
	}
	operations := telemetry.Fanout{telemetry.NewZapLogger(logger), metrics}

	sink, closeSink, err := openSink(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeSink(); closeErr != nil {
			logger.Warn("follow-up sink close", zap.Error(closeErr))
		}
	}()
	dispatcher, err := notify.NewDispatcher(sink, logger, notify.WithDeliveryObserver(metrics))
	if err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if closeErr := dispatcher.Close(drainCtx); closeErr != nil {
			logger.Warn("follow-up queue not drained", zap.Error(closeErr))
		}
	}()

	gateway, err := paystack.NewClient(paystack.Config{
		BaseURL:       cfg.PaystackBaseURL,
		SecretKey:     cfg.PaystackSecret,
		WebhookSecret: cfg.WebhookSecret,
		Timeout:       cfg.GatewayTimeout,
	})
	if err != nil {
		return err
	}
	references, err := refgen.New(cfg.NodeID, refgen.DefaultPrefix)
	if err != nil {
		return err
	}
	now := func() time.Time { return time.Now().UTC() }

	bookings, err := booking.NewService(store, gateway, references, now,
		booking.WithOperationLogger(operations),
		booking.WithPriceTolerance(cfg.PriceTolerance),
		booking.WithCallbackURL(cfg.CallbackURL),
	)
	if err != nil {
		return err
	}
	payments, err := booking.NewReconciler(store, gateway, now,
		booking.WithReconcilerLogger(operations),
		booking.WithEventPublisher(dispatcher),
		booking.WithWebhookReverify(cfg.WebhookReverify),
	)
	if err != nil {
		return err
	}

	if cfg.SweepInterval > 0 {
		sweeper, err := worker.NewSweeper(store, payments, logger, worker.SweeperConfig{
			Interval:   cfg.SweepInterval,
			StaleAfter: cfg.StaleAfter,
		}, now)
		if err != nil {
			return err
		}
		sweepCtx, stopSweeper := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			sweeper.Run(sweepCtx)
		}()
		defer func() {
			stopSweeper()
			<-done
		}()
	}

	handler, err := httpapi.NewHandler(cfg.HTTP, bookings, payments, paystack.SignatureHeader, logger)
	if err != nil {
		return err
	}
	router := httpapi.NewRouter(handler, registry)
	logger.Info("bookingd starting",
		zap.String("listen_addr", cfg.HTTP.ListenAddr),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Bool("rabbitmq", cfg.RabbitURL != ""),
		zap.Duration("sweep_interval", cfg.SweepInterval),
	)
	return httpapi.Serve(ctx, cfg.HTTP, router, logger)
}

func openSink(cfg *runtimeConfig, logger *zap.Logger) (notify.Sink, func() error, error) {
	if cfg.RabbitURL == "" {
		return notify.NewLogSink(logger), func() error { return nil }, nil
	}
	sink, err := notify.NewRabbitSink(cfg.RabbitURL, cfg.RabbitExchange)
	if err != nil {
		return nil, nil, err
	}
	return sink, sink.Close, nil
}
