// Package watcher observa a pasta de entrada e encaminha XML, ZIP e OFX
// para processing, publicando um job quando há fila.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"fiscal-intake/internal/config"
	"fiscal-intake/internal/queue"
)

type Watcher struct {
	cfg     *config.Config
	watcher *fsnotify.Watcher

	stableAttempts int
	stableDelay    time.Duration

	// nil no modo polling: o worker varre processing sozinho
	pub queue.Publisher
}

func New(cfg *config.Config, pub queue.Publisher) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("erro criando fsnotify watcher: %w", err)
	}

	if pub == nil {
		slog.Info("watcher sem fila; arquivos ficam em processing para o worker em modo polling")
	}

	return &Watcher{
		cfg:            cfg,
		watcher:        w,
		stableAttempts: 5,
		stableDelay:    200 * time.Millisecond,
		pub:            pub,
	}, nil
}

func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for _, d := range w.cfg.Dirs() {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("erro criando diretório %s: %w", d, err)
		}
	}

	slog.Info("processando arquivos já existentes em incoming",
		"incoming_dir", w.cfg.IncomingDir,
	)
	w.processExistingFiles(ctx)

	if err := w.watcher.Add(w.cfg.IncomingDir); err != nil {
		return err
	}

	slog.Info("watching diretório de entrada",
		"incoming_dir", w.cfg.IncomingDir,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("contexto cancelado, encerrando watcher")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("erro no watcher", "err", err)
		}
	}
}

func (w *Watcher) processExistingFiles(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.IncomingDir)
	if err != nil {
		slog.Error("erro lendo diretório incoming",
			"dir", w.cfg.IncomingDir,
			"err", err,
		)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.handleIncomingFile(ctx, filepath.Join(w.cfg.IncomingDir, entry.Name()), queue.SourceBacklog)
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Chmod) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Debug("arquivo não está mais acessível em evento, ignorando",
				"path", event.Name,
				"err", err,
			)
		}
		return
	}
	if info.IsDir() {
		return
	}

	w.handleIncomingFile(ctx, event.Name, queue.SourceEvent)
}

func (w *Watcher) handleIncomingFile(ctx context.Context, path, source string) {
	filename := filepath.Base(path)

	if isZoneIdentifier(filename) {
		slog.Info("arquivo de metadata (Zone.Identifier) detectado; removendo",
			"path", path,
		)
		if err := os.Remove(path); err != nil {
			slog.Warn("falha ao remover arquivo de metadata", "path", path, "err", err)
		}
		return
	}

	kind := queue.KindOf(filename)
	if kind == "" {
		w.moveToIgnored(path, filename)
		return
	}

	if !w.waitFileStable(path) {
		slog.Warn("arquivo não estabilizou, ignorando por enquanto", "path", path)
		return
	}

	dest, err := w.moveToProcessing(path, filename)
	if err != nil {
		return
	}
	w.publish(ctx, queue.Job{Path: dest, Filename: filepath.Base(dest), Kind: kind, Source: source})
}

// waitFileStable espera o tamanho repetir entre duas leituras.
func (w *Watcher) waitFileStable(path string) bool {
	var lastSize int64 = -1

	for i := 0; i < w.stableAttempts; i++ {
		info, err := os.Stat(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				slog.Debug("erro ao stat arquivo durante espera de estabilidade", "path", path, "err", err)
			}
			return false
		}

		size := info.Size()
		if size > 0 && size == lastSize {
			return true
		}

		lastSize = size
		time.Sleep(w.stableDelay)
	}

	return false
}

func (w *Watcher) moveToProcessing(srcPath, filename string) (string, error) {
	destPath := uniquePath(w.cfg.ProcessingDir, filename)
	if err := os.Rename(srcPath, destPath); err != nil {
		slog.Error("erro movendo arquivo de incoming para processing",
			"src", srcPath,
			"dest", destPath,
			"err", err,
		)
		return "", err
	}
	slog.Info("arquivo movido de incoming para processing",
		"src", srcPath,
		"dest", destPath,
	)
	return destPath, nil
}

func (w *Watcher) publish(ctx context.Context, job queue.Job) {
	if w.pub == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := w.pub.PublishJob(pubCtx, job); err != nil {
		slog.Error("erro publicando job na fila",
			"path", job.Path,
			"kind", job.Kind,
			"err", err,
		)
		return
	}
	slog.Info("job publicado na fila", "path", job.Path, "kind", job.Kind, "source", job.Source)
}

func (w *Watcher) moveToIgnored(srcPath, filename string) {
	destPath := uniquePath(w.cfg.IgnoredDir, filename)
	if err := os.Rename(srcPath, destPath); err != nil {
		slog.Error("erro movendo arquivo de incoming para ignored",
			"src", srcPath,
			"dest", destPath,
			"err", err,
		)
		return
	}
	slog.Info("arquivo não suportado movido para ignored",
		"src", srcPath,
		"dest", destPath,
	)
}

// uniquePath evita sobrescrever arquivo de mesmo nome já presente em dir.
func uniquePath(dir, filename string) string {
	dest := filepath.Join(dir, filename)
	if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
		return dest
	}
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, time.Now().UnixNano(), ext))
}

func isZoneIdentifier(name string) bool {
	return strings.Contains(strings.ToLower(name), "zone.identifier")
}
