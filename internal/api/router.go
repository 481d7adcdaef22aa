// Package api expõe os fluxos de importação para o front-end via gin.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"fiscal-intake/internal/entrynote"
	"fiscal-intake/internal/importer"
	"fiscal-intake/internal/ofx"
	"fiscal-intake/internal/productlink"
	"fiscal-intake/internal/sefaz"
)

// Service é o que os handlers usam do importer.Service.
type Service interface {
	PreviewXML(ctx context.Context, data []byte) (*importer.Preview, error)
	ImportXML(ctx context.Context, data []byte, source string) (*importer.Result, error)
	FetchAndImport(ctx context.Context, accessKey string) (*importer.Result, error)
	Manifest(ctx context.Context, accessKey string, event sefaz.ManifestEvent, justification string) error

	CreateNoteFromXML(ctx context.Context, data []byte) (*importer.Result, error)
	CreateNote(ctx context.Context, m importer.ManualNote) (*entrynote.Note, error)
	Note(ctx context.Context, noteID string) (*entrynote.Note, error)
	UpdateHeader(ctx context.Context, noteID string, upd importer.HeaderUpdate) (*entrynote.Note, error)
	AddItem(ctx context.Context, noteID string, m entrynote.ManualItem) (*entrynote.Note, error)
	RemoveItem(ctx context.Context, noteID string, number int) (*entrynote.Note, error)
	UpdateItem(ctx context.Context, noteID string, number int, upd importer.ItemUpdate) (*entrynote.Note, error)
	Suggestions(ctx context.Context, noteID string, number int) ([]productlink.Suggestion, error)
	LinkItem(ctx context.Context, noteID string, number int, productID string, created bool) (*entrynote.Note, error)
	IgnoreItem(ctx context.Context, noteID string, number int) (*entrynote.Note, error)
	UnlinkItem(ctx context.Context, noteID string, number int) (*entrynote.Note, error)
	PostNote(ctx context.Context, noteID string, opts entrynote.PostOptions) (*entrynote.PostResult, error)
	CancelNote(ctx context.Context, noteID string) error

	AnalyzeOFX(ctx context.Context, accountID string, data []byte) (*ofx.Report, error)
	ImportOFX(ctx context.Context, accountID string, data []byte) (*ofx.Report, error)
	Reconcile(ctx context.Context, req ofx.ReconcileRequest) (*ofx.Movement, error)
}

var _ Service = (*importer.Service)(nil)

type Options struct {
	MaxXMLBytes      int64
	MaxOFXBytes      int64
	DefaultAccountID string
}

type Handler struct {
	svc  Service
	opts Options
}

func NewRouter(svc Service, opts Options) *gin.Engine {
	if opts.MaxXMLBytes <= 0 {
		opts.MaxXMLBytes = 5 << 20
	}
	if opts.MaxOFXBytes <= 0 {
		opts.MaxOFXBytes = 5 << 20
	}
	h := &Handler{svc: svc, opts: opts}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP", "service": "fiscal-intake"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/nfe/preview", h.previewXML)
		v1.POST("/nfe/import", h.importXML)
		v1.POST("/nfe/fetch/:chave", h.fetchXML)
		v1.POST("/nfe/manifest/:chave", h.manifest)

		v1.POST("/notes", h.createNote)
		v1.GET("/notes/:id", h.getNote)
		v1.PATCH("/notes/:id", h.updateHeader)
		v1.POST("/notes/:id/items", h.addItem)
		v1.DELETE("/notes/:id/items/:item", h.removeItem)
		v1.POST("/notes/:id/post", h.postNote)
		v1.POST("/notes/:id/cancel", h.cancelNote)
		v1.PATCH("/notes/:id/items/:item", h.updateItem)
		v1.GET("/notes/:id/items/:item/suggestions", h.suggestions)
		v1.POST("/notes/:id/items/:item/link", h.linkItem)
		v1.POST("/notes/:id/items/:item/ignore", h.ignoreItem)
		v1.DELETE("/notes/:id/items/:item/link", h.unlinkItem)

		v1.POST("/ofx/analyze", h.analyzeOFX)
		v1.POST("/ofx/import", h.importOFX)
		v1.POST("/ofx/reconcile", h.reconcile)
	}
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("requisição atendida",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duracao_ms", time.Since(start).Milliseconds(),
		)
	}
}
