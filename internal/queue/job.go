package queue

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// Tipos de arquivo aceitos na pasta de entrada.
const (
	KindXML = "xml"
	KindZIP = "zip"
	KindOFX = "ofx"
)

// Origem do job no watcher.
const (
	SourceBacklog = "backlog" // já estava em incoming na partida
	SourceEvent   = "event"   // chegou com o watcher rodando
)

type Job struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Kind     string `json:"kind"` // xml|zip|ofx
	Source   string `json:"source,omitempty"`
}

// KindOf devolve o tipo do job pela extensão, ou "" se o arquivo não interessa.
func KindOf(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xml":
		return KindXML
	case ".zip":
		return KindZIP
	case ".ofx":
		return KindOFX
	}
	return ""
}

// Publisher é o lado do watcher; implementado por RabbitMQ.
type Publisher interface {
	PublishJob(ctx context.Context, job Job) error
}

// permanentError marca falha que não adianta reprocessar.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent embrulha err para o consumidor mandar o job direto pra DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
