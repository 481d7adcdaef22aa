package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fiscal-intake/internal/app"
	"fiscal-intake/internal/config"
	"fiscal-intake/internal/logx"
	"fiscal-intake/internal/metrics"
	"fiscal-intake/internal/queue"
	"fiscal-intake/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("erro carregando config", "err", err)
		os.Exit(1)
	}
	logx.Init(cfg.LogLevel)
	slog.Info("[fiscal-intake-worker] iniciando...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDB(ctx, cfg)
	if err != nil {
		slog.Error("erro conectando ao banco", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// inicia métricas Prometheus
	metrics.Init()
	metrics.StartHTTPServer(cfg.WorkerMetricsAddr)

	var consumer worker.Consumer
	if cfg.QueueBackend == config.QueueRabbitMQ {
		rmq, err := queue.NewRabbitMQ(queue.Options{
			URL:        cfg.RabbitURL,
			Queue:      cfg.RabbitQueue,
			MaxRetries: cfg.RabbitMaxRetries,
			Prefetch:   cfg.RabbitPrefetch,
		})
		if err != nil {
			slog.Error("erro criando cliente RabbitMQ no worker; caindo para modo polling", "err", err)
		} else {
			consumer = rmq
		}
	}

	w := worker.New(cfg, app.NewService(cfg, db), consumer)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker finalizou com erro", "err", err)
		os.Exit(1)
	}

	slog.Info("worker finalizado")
}
