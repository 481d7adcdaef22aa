// Package sefaz fala com o serviço intermediário que conversa com a SEFAZ.
// Assinatura e SOAP ficam do lado de lá; aqui só há o relay HTTP.
package sefaz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fiscal-intake/internal/fiscal"
)

var (
	ErrNotConfigured    = errors.New("gateway SEFAZ não configurado")
	ErrDocumentNotFound = errors.New("documento não encontrado na SEFAZ")
	ErrInvalidAccessKey = errors.New("chave de acesso deve ter 44 dígitos")
)

// ManifestEvent é o código do evento de manifestação do destinatário.
type ManifestEvent string

const (
	EventConfirmation ManifestEvent = "210200"
	EventAwareness    ManifestEvent = "210210"
	EventUnknown      ManifestEvent = "210220"
	EventNotPerformed ManifestEvent = "210240"
)

const maxResponseBytes = 10 << 20

// Gateway busca XML por chave e registra a manifestação do destinatário.
type Gateway interface {
	FetchXML(ctx context.Context, accessKey string) ([]byte, error)
	Manifest(ctx context.Context, accessKey string, event ManifestEvent, justification string) error
}

// HTTPClient permite trocar o transporte nos testes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL string
	http    HTTPClient
}

// NewClient devolve o cliente do relay. baseURL vazio devolve um Gateway que
// sempre falha com ErrNotConfigured.
func NewClient(baseURL string, httpClient HTTPClient) Gateway {
	if strings.TrimSpace(baseURL) == "" {
		return disabled{}
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func checkKey(accessKey string) (string, error) {
	key := fiscal.OnlyDigits(accessKey)
	if len(key) != 44 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccessKey, accessKey)
	}
	return key, nil
}

func (c *Client) FetchXML(ctx context.Context, accessKey string) ([]byte, error) {
	key, err := checkKey(accessKey)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/nfe/"+key+"/xml", nil)
	if err != nil {
		return nil, fmt.Errorf("erro montando requisição ao gateway: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	slog.Info("XML obtido no gateway SEFAZ", "chave", key, "bytes", len(body))
	return body, nil
}

type manifestRequest struct {
	Event         ManifestEvent `json:"evento"`
	Justification string        `json:"justificativa,omitempty"`
}

func (c *Client) Manifest(ctx context.Context, accessKey string, event ManifestEvent, justification string) error {
	key, err := checkKey(accessKey)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(manifestRequest{Event: event, Justification: justification})
	if err != nil {
		return fmt.Errorf("erro serializando manifestação: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/nfe/"+key+"/manifestacao", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("erro montando requisição ao gateway: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req); err != nil {
		return err
	}
	slog.Info("manifestação enviada ao gateway SEFAZ", "chave", key, "evento", event)
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("erro chamando gateway SEFAZ: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("erro lendo resposta do gateway SEFAZ: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrDocumentNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("gateway SEFAZ respondeu %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

type disabled struct{}

func (disabled) FetchXML(context.Context, string) ([]byte, error) {
	return nil, ErrNotConfigured
}

func (disabled) Manifest(context.Context, string, ManifestEvent, string) error {
	return ErrNotConfigured
}
