package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"fiscal-intake/internal/entrynote"
	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/importer"
	"fiscal-intake/internal/ofx"
	"fiscal-intake/internal/productlink"
	"fiscal-intake/internal/sefaz"
	"fiscal-intake/internal/storage"
)

// Response é o envelope padrão das respostas.
type Response struct {
	Status  string      `json:"status"` // success|warning|error
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

func success(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Response{Status: "success", Data: data, Message: message})
}

func created(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusCreated, Response{Status: "success", Data: data, Message: message})
}

// warning responde 200: a operação foi feita, mas há algo para o usuário conferir.
func warning(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Response{Status: "warning", Data: data, Message: message})
	slog.Warn("API warning", "path", c.Request.URL.Path, "message", message)
}

func fail(c *gin.Context, code int, message string, errs ...string) {
	c.JSON(code, Response{Status: "error", Message: message, Errors: errs})
	slog.Error("API error", "path", c.Request.URL.Path, "status", code, "errors", errs)
}

func failWithData(c *gin.Context, code int, data interface{}, message string) {
	c.JSON(code, Response{Status: "error", Data: data, Message: message})
	slog.Warn("API error", "path", c.Request.URL.Path, "status", code, "message", message)
}

type errorClass struct {
	targets []error
	code    int
	message string // vazio usa err.Error()
}

// A primeira classe que casar decide o status HTTP.
var errorClasses = []errorClass{
	{[]error{importer.ErrDuplicateDocument}, http.StatusConflict, "Documento já importado."},
	{[]error{fiscal.ErrInputTooLarge, ofx.ErrInputTooLarge}, http.StatusRequestEntityTooLarge, ""},
	{[]error{
		fiscal.ErrMalformedXML, fiscal.ErrUnknownDocument, fiscal.ErrMissingRoot,
		fiscal.ErrMissingProviderTaxID, fiscal.ErrSchemaInvalid,
		ofx.ErrNotOFX, ofx.ErrMissingAccount,
		entrynote.ErrInvalidQuantity,
		productlink.ErrNoProduct, productlink.ErrMissingKey,
		sefaz.ErrInvalidAccessKey,
	}, http.StatusBadRequest, ""},
	{[]error{
		entrynote.ErrItemNotFound, ofx.ErrItemNotFound, ofx.ErrOpenItemNotFound,
		sefaz.ErrDocumentNotFound,
	}, http.StatusNotFound, ""},
	{[]error{
		entrynote.ErrNoteClosed, storage.ErrNoteNotOpen, entrynote.ErrConfirmationRequired,
		productlink.ErrPendingLinks, productlink.ErrAlreadyResolved,
		ofx.ErrAlreadyReconciled,
	}, http.StatusConflict, ""},
	{[]error{
		entrynote.ErrFieldLocked, entrynote.ErrMissingHeader, entrynote.ErrNoItems,
		ofx.ErrKindMismatch,
	}, http.StatusUnprocessableEntity, ""},
	{[]error{sefaz.ErrNotConfigured}, http.StatusServiceUnavailable, ""},
	{[]error{storage.ErrNotFound}, http.StatusNotFound, "Registro não encontrado."},
	{[]error{storage.ErrDuplicate, storage.ErrForeignKey}, http.StatusConflict, ""},
	{[]error{storage.ErrPermission}, http.StatusForbidden, ""},
}

func classify(err error) (int, string) {
	for _, cl := range errorClasses {
		for _, target := range cl.targets {
			if !errors.Is(err, target) {
				continue
			}
			msg := cl.message
			if msg == "" {
				msg = err.Error()
			}
			if isStorageErr(target) {
				msg = storage.UserMessage(err)
			}
			return cl.code, msg
		}
	}
	return http.StatusInternalServerError, "Erro interno ao processar a requisição."
}

func isStorageErr(target error) bool {
	return target == storage.ErrNotFound || target == storage.ErrDuplicate ||
		target == storage.ErrForeignKey || target == storage.ErrPermission
}

// respondError traduz o erro do serviço. Reprovação na validação devolve o
// relatório em data.
func respondError(c *gin.Context, err error) {
	var verr *importer.ValidationError
	if errors.As(err, &verr) {
		code := http.StatusUnprocessableEntity
		if errors.Is(err, importer.ErrDuplicateDocument) {
			code = http.StatusConflict
		}
		failWithData(c, code, verr.Report, verr.Error())
		return
	}

	code, msg := classify(err)
	if code == http.StatusInternalServerError {
		fail(c, code, msg, err.Error())
		return
	}
	fail(c, code, msg)
}
