// Package app monta as dependências comuns aos binários.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fiscal-intake/internal/config"
	"fiscal-intake/internal/importer"
	"fiscal-intake/internal/sefaz"
	"fiscal-intake/internal/storage"
)

// OpenDB abre o banco da aplicação e faz o ping.
func OpenDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.AppDSN())
	if err != nil {
		return nil, fmt.Errorf("erro abrindo conexão com banco da aplicação: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("erro no ping ao banco da aplicação: %w", err)
	}
	slog.Info("conectado ao banco da aplicação com sucesso", "host", cfg.DBHost, "banco", cfg.DBName)
	return db, nil
}

// NewService monta o importer.Service sobre o Postgres e o gateway SEFAZ
// configurado (desligado sem FISCAL_SEFAZ_GATEWAY_URL).
func NewService(cfg *config.Config, db *sql.DB) *importer.Service {
	gw := sefaz.NewClient(cfg.SefazGatewayURL, &http.Client{Timeout: 30 * time.Second})
	return importer.New(importer.StoreDeps(storage.New(db), gw), importer.Options{
		CompanyID:   cfg.CompanyID,
		XSDPath:     cfg.XSDPath(),
		MaxXMLBytes: cfg.MaxXMLBytes,
		MaxOFXBytes: cfg.MaxOFXBytes,
	})
}
