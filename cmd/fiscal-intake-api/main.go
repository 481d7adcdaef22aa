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

	"github.com/gin-gonic/gin"

	"fiscal-intake/internal/api"
	"fiscal-intake/internal/app"
	"fiscal-intake/internal/config"
	"fiscal-intake/internal/logx"
	"fiscal-intake/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("erro carregando config", "err", err)
		os.Exit(1)
	}
	logx.Init(cfg.LogLevel)
	slog.Info("[fiscal-intake-api] iniciando...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDB(ctx, cfg)
	if err != nil {
		slog.Error("erro conectando ao banco", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	metrics.Init()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(app.NewService(cfg, db), api.Options{
		MaxXMLBytes:      cfg.MaxXMLBytes,
		MaxOFXBytes:      cfg.MaxOFXBytes,
		DefaultAccountID: cfg.BankAccountID,
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("API ouvindo", "addr", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("erro no servidor HTTP", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("erro encerrando servidor HTTP", "err", err)
	}
	slog.Info("[fiscal-intake-api] finalizado")
}
