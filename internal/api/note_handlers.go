package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"fiscal-intake/internal/entrynote"
	"fiscal-intake/internal/importer"
)

func itemNumber(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("item"))
	if err != nil || n <= 0 {
		fail(c, http.StatusBadRequest, "Número do item inválido.")
		return 0, false
	}
	return n, true
}

func (h *Handler) getNote(c *gin.Context) {
	n, err := h.svc.Note(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, n, "")
}

// createNote abre uma nota de entrada. Com arquivo (multipart ou XML no
// corpo) a nota vem do documento sem corrigir o total; com JSON é digitada.
func (h *Handler) createNote(c *gin.Context) {
	ct := c.ContentType()
	if strings.HasPrefix(ct, "multipart/") || strings.HasSuffix(ct, "/xml") {
		data, err := readUpload(c, h.opts.MaxXMLBytes)
		if err != nil {
			respondUploadError(c, err)
			return
		}
		res, err := h.svc.CreateNoteFromXML(c.Request.Context(), data)
		if err != nil {
			respondError(c, err)
			return
		}
		created(c, res, "Nota criada a partir do XML. "+res.Report.Summary())
		return
	}

	var m importer.ManualNote
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&m); err != nil {
			fail(c, http.StatusBadRequest, "Requisição inválida.", err.Error())
			return
		}
	}
	n, err := h.svc.CreateNote(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, n, "Nota digitada criada.")
}

func (h *Handler) updateHeader(c *gin.Context) {
	var upd importer.HeaderUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		fail(c, http.StatusBadRequest, "Requisição inválida.", err.Error())
		return
	}
	n, err := h.svc.UpdateHeader(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, n, "")
}

func (h *Handler) addItem(c *gin.Context) {
	var m entrynote.ManualItem
	if err := c.ShouldBindJSON(&m); err != nil {
		fail(c, http.StatusBadRequest, "Requisição inválida.", err.Error())
		return
	}
	n, err := h.svc.AddItem(c.Request.Context(), c.Param("id"), m)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, n, "Item incluído.")
}

func (h *Handler) removeItem(c *gin.Context) {
	number, ok := itemNumber(c)
	if !ok {
		return
	}
	n, err := h.svc.RemoveItem(c.Request.Context(), c.Param("id"), number)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, n, "Item removido.")
}

func (h *Handler) updateItem(c *gin.Context) {
	number, ok := itemNumber(c)
	if !ok {
		return
	}
	var upd importer.ItemUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		fail(c, http.StatusBadRequest, "Requisição inválida.", err.Error())
		return
	}
	if upd.Empty() {
		fail(c, http.StatusBadRequest, "Nenhum campo do item foi informado.")
		return
	}

	n, err := h.svc.UpdateItem(c.Request.Context(), c.Param("id"), number, upd)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, n, "")
}

func (h *Handler) suggestions(c *gin.Context) {
	number, ok := itemNumber(c)
	if !ok {
		return
	}
	out, err := h.svc.Suggestions(c.Request.Context(), c.Param("id"), number)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, out, "")
}

type linkRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Created   bool   `json:"created"`
}

func (h *Handler) linkItem(c *gin.Context) {
	number, ok := itemNumber(c)
	if !ok {
		return
	}
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Requisição inválida.", err.Error())
		return
	}

	n, err := h.svc.LinkItem(c.Request.Context(), c.Param("id"), number, req.ProductID, req.Created)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, n, "Item vinculado.")
}

func (h *Handler) ignoreItem(c *gin.Context) {
	number, ok := itemNumber(c)
	if !ok {
		return
	}
	n, err := h.svc.IgnoreItem(c.Request.Context(), c.Param("id"), number)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, n, "Item marcado como sem produto.")
}

func (h *Handler) unlinkItem(c *gin.Context) {
	number, ok := itemNumber(c)
	if !ok {
		return
	}
	n, err := h.svc.UnlinkItem(c.Request.Context(), c.Param("id"), number)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, n, "Vínculo desfeito.")
}

type postRequest struct {
	ConfirmShrinkage bool `json:"confirm_shrinkage"`
}

func (h *Handler) postNote(c *gin.Context) {
	var req postRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Requisição inválida.", err.Error())
			return
		}
	}

	res, err := h.svc.PostNote(c.Request.Context(), c.Param("id"), entrynote.PostOptions{ConfirmShrinkage: req.ConfirmShrinkage})
	if errors.Is(err, entrynote.ErrPayablesFailed) && res != nil {
		warning(c, res, err.Error())
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, res, "Nota lançada.")
}

func (h *Handler) cancelNote(c *gin.Context) {
	if err := h.svc.CancelNote(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	success(c, nil, "Nota cancelada.")
}
