package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fiscal-intake/internal/config"
	"fiscal-intake/internal/logx"
	"fiscal-intake/internal/metrics"
	"fiscal-intake/internal/queue"
	"fiscal-intake/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("erro carregando config", "err", err)
		os.Exit(1)
	}
	logx.Init(cfg.LogLevel)
	slog.Info("[fiscal-intake-watcher] iniciando...")

	// inicia métricas Prometheus
	metrics.Init()
	metrics.StartHTTPServer(cfg.WatcherMetricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pub queue.Publisher
	if cfg.QueueBackend == config.QueueRabbitMQ {
		rmq, err := queue.NewRabbitMQ(queue.Options{
			URL:        cfg.RabbitURL,
			Queue:      cfg.RabbitQueue,
			MaxRetries: cfg.RabbitMaxRetries,
			Prefetch:   cfg.RabbitPrefetch,
		})
		if err != nil {
			slog.Error("erro criando cliente RabbitMQ no watcher", "err", err)
			os.Exit(1)
		}
		defer rmq.Close()
		pub = rmq
		slog.Info("RabbitMQ habilitado no watcher", "queue", cfg.RabbitQueue)
	} else {
		slog.Info("fila desabilitada no watcher; worker lê a pasta processing", "backend", cfg.QueueBackend)
	}

	w, err := watcher.New(cfg, pub)
	if err != nil {
		slog.Error("erro criando watcher", "err", err)
		os.Exit(1)
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("watcher finalizou com erro", "err", err)
		os.Exit(1)
	}

	slog.Info("[fiscal-intake-watcher] finalizado")
}
