package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var errEmptyUpload = errors.New("arquivo não enviado")

// readUpload aceita o arquivo no campo "file" de um multipart ou como corpo
// bruto da requisição, até limit bytes.
func readUpload(c *gin.Context, limit int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+(1<<20))

	var src io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errEmptyUpload, err)
		}
		if fh.Size > limit {
			return nil, tooLarge(limit)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("não foi possível abrir o arquivo enviado: %w", err)
		}
		defer f.Close()
		src = f
	}

	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(src, limit+1))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, tooLarge(limit)
		}
		return nil, fmt.Errorf("erro lendo arquivo enviado: %w", err)
	}
	if n == 0 {
		return nil, errEmptyUpload
	}
	if n > limit {
		return nil, tooLarge(limit)
	}
	return buf.Bytes(), nil
}

type uploadTooLarge struct{ limit int64 }

func (e uploadTooLarge) Error() string {
	return fmt.Sprintf("arquivo excede o limite de %d bytes", e.limit)
}

func tooLarge(limit int64) error { return uploadTooLarge{limit: limit} }

func respondUploadError(c *gin.Context, err error) {
	var tl uploadTooLarge
	if errors.As(err, &tl) {
		fail(c, http.StatusRequestEntityTooLarge, tl.Error())
		return
	}
	fail(c, http.StatusBadRequest, "Arquivo não encontrado ou inválido.", err.Error())
}

func wantsXLSX(c *gin.Context) bool {
	return strings.EqualFold(c.Query("format"), "xlsx")
}
