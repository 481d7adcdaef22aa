package worker

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fiscal-intake/internal/config"
	"fiscal-intake/internal/entrynote"
	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/importer"
	"fiscal-intake/internal/ofx"
	"fiscal-intake/internal/productlink"
	"fiscal-intake/internal/queue"
)

// Importer é o que o worker usa do importer.Service.
type Importer interface {
	ImportXML(ctx context.Context, data []byte, source string) (*importer.Result, error)
	ImportOFX(ctx context.Context, accountID string, data []byte) (*ofx.Report, error)
}

var _ Importer = (*importer.Service)(nil)

// Consumer é o lado do worker na fila; implementado por RabbitMQ.
type Consumer interface {
	ConsumeJobs(ctx context.Context, handler func(queue.Job) error) error
	Close() error
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeIgnored
	outcomeFailed
	outcomeRetry
)

type Worker struct {
	cfg      *config.Config
	imp      Importer
	consumer Consumer
	interval time.Duration
}

// New cria o worker. Com consumer nil o worker roda em modo polling na pasta
// processing.
func New(cfg *config.Config, imp Importer, consumer Consumer) *Worker {
	return &Worker{
		cfg:      cfg,
		imp:      imp,
		consumer: consumer,
		interval: 2 * time.Second,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	// garante diretórios
	for _, d := range w.cfg.Dirs() {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}

	if w.consumer != nil {
		defer w.consumer.Close()
		slog.Info("worker rodando em modo fila (RabbitMQ)",
			"processing_dir", w.cfg.ProcessingDir,
		)
		return w.consumer.ConsumeJobs(ctx, func(job queue.Job) error {
			return w.handleJob(ctx, job)
		})
	}

	slog.Info("worker rodando em modo polling de diretório",
		"processing_dir", w.cfg.ProcessingDir,
		"pool", w.cfg.WorkerPoolSize,
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("contexto cancelado, encerrando worker")
			return ctx.Err()
		case <-ticker.C:
			w.processProcessingFolder(ctx)
		}
	}
}

// ----------------------------------------------------------------------
// MODO FILA (RabbitMQ)
// ----------------------------------------------------------------------

// handleJob devolve erro só quando vale reenfileirar. Documento reprovado vai
// para failed e volta como erro permanente (DLQ direto).
func (w *Worker) handleJob(ctx context.Context, job queue.Job) error {
	info, err := os.Stat(job.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("arquivo do job não existe mais, ignorando",
				"path", job.Path,
				"filename", job.Filename,
				"kind", job.Kind,
			)
			return nil
		}
		return fmt.Errorf("erro ao stat arquivo do job %s: %w", job.Path, err)
	}
	if info.IsDir() {
		return nil
	}

	kind := strings.ToLower(job.Kind)
	if kind == "" {
		kind = queue.KindOf(job.Filename)
	}

	out, err := w.processFile(ctx, job.Path, job.Filename, kind)
	switch out {
	case outcomeRetry:
		// o arquivo fica em processing para a próxima tentativa
		return err
	case outcomeFailed:
		return queue.Permanent(err)
	}
	return nil
}

// ----------------------------------------------------------------------
// MODO POLLING
// ----------------------------------------------------------------------

func (w *Worker) processProcessingFolder(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.ProcessingDir)
	if err != nil {
		slog.Error("erro lendo diretório processing", "dir", w.cfg.ProcessingDir, "err", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(w.cfg.WorkerPoolSize, 1))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		srcPath := filepath.Join(w.cfg.ProcessingDir, entry.Name())
		g.Go(func() error {
			w.handleProcessingFile(gctx, srcPath)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Worker) handleProcessingFile(ctx context.Context, srcPath string) {
	info, err := os.Stat(srcPath)
	if err != nil {
		slog.Warn("arquivo em processing não está mais acessível, ignorando",
			"path", srcPath,
			"err", err,
		)
		return
	}
	if info.IsDir() {
		return
	}

	filename := filepath.Base(srcPath)
	kind := queue.KindOf(filename)
	if kind == "" {
		slog.Info("extensão não tratada em processing; movendo para ignored",
			"path", srcPath,
		)
		w.moveTo(w.cfg.IgnoredDir, srcPath, filename)
		return
	}

	// sem fila não há reentrega: falha transitória também vai para failed
	if out, _ := w.processFile(ctx, srcPath, filename, kind); out == outcomeRetry {
		w.moveTo(w.cfg.FailedDir, srcPath, filename)
	}
}

// ----------------------------------------------------------------------
// Lógica de processamento
// ----------------------------------------------------------------------

// processFile importa o arquivo e o move conforme o resultado. Em
// outcomeRetry o arquivo fica onde está.
func (w *Worker) processFile(ctx context.Context, srcPath, filename, kind string) (outcome, error) {
	if kind == queue.KindZIP {
		return w.processZIP(ctx, srcPath, filename)
	}

	out, err := w.importFile(ctx, srcPath, kind, importer.SourceXML)
	switch out {
	case outcomeProcessed:
		w.moveTo(w.cfg.ProcessedDir, srcPath, filename)
	case outcomeIgnored:
		w.moveTo(w.cfg.IgnoredDir, srcPath, filename)
	case outcomeFailed:
		w.moveTo(w.cfg.FailedDir, srcPath, filename)
	}
	return out, err
}

func (w *Worker) importFile(ctx context.Context, path, kind, source string) (outcome, error) {
	limit := w.cfg.MaxXMLBytes
	if kind == queue.KindOFX {
		limit = w.cfg.MaxOFXBytes
	}
	data, err := readLimited(path, limit)
	if err != nil {
		slog.Error("erro lendo arquivo", "path", path, "err", err)
		return outcomeFailed, err
	}

	switch kind {
	case queue.KindXML:
		res, err := w.imp.ImportXML(ctx, data, source)
		out := classify(err)
		w.logResult(path, kind, out, err)
		if err == nil {
			slog.Info("documento importado",
				"path", path,
				"nota", res.Note.ID,
				"numero", res.Note.Header.Number,
				"itens", len(res.Note.Items),
				"pendentes", res.Note.PendingLinks(),
				"validacao", res.Report.Summary(),
			)
		}
		return out, err

	case queue.KindOFX:
		rep, err := w.imp.ImportOFX(ctx, w.cfg.BankAccountID, data)
		out := classify(err)
		w.logResult(path, kind, out, err)
		if err == nil {
			slog.Info("extrato importado",
				"path", path,
				"conta", rep.Statement.AccountID,
				"novos", rep.New,
				"duplicados", rep.Duplicated,
				"sugestoes", rep.Suggested,
				"rejeitados", rep.Rejected,
			)
		}
		return out, err
	}

	err = fmt.Errorf("tipo de arquivo não suportado: %q", kind)
	slog.Warn("tipo de job desconhecido", "path", path, "kind", kind)
	return outcomeIgnored, err
}

// classify separa o que não adianta reprocessar (documento ruim) do que é
// falha de infraestrutura.
func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeProcessed
	case errors.Is(err, importer.ErrDuplicateDocument):
		return outcomeIgnored
	case errors.Is(err, importer.ErrValidationFailed),
		errors.Is(err, fiscal.ErrMalformedXML),
		errors.Is(err, fiscal.ErrUnknownDocument),
		errors.Is(err, fiscal.ErrMissingRoot),
		errors.Is(err, fiscal.ErrMissingProviderTaxID),
		errors.Is(err, fiscal.ErrSchemaInvalid),
		errors.Is(err, fiscal.ErrInputTooLarge),
		errors.Is(err, ofx.ErrNotOFX),
		errors.Is(err, ofx.ErrInputTooLarge),
		errors.Is(err, ofx.ErrMissingAccount),
		errors.Is(err, entrynote.ErrMissingHeader),
		errors.Is(err, entrynote.ErrNoItems),
		errors.Is(err, productlink.ErrMissingKey):
		return outcomeFailed
	}
	return outcomeRetry
}

func (w *Worker) logResult(path, kind string, out outcome, err error) {
	switch out {
	case outcomeIgnored:
		slog.Info("documento já importado, ignorando reprocessamento",
			"path", path,
			"kind", kind,
		)
	case outcomeFailed:
		slog.Error("documento reprovado",
			"path", path,
			"kind", kind,
			"err", err,
		)
	case outcomeRetry:
		slog.Error("falha transitória ao importar documento",
			"path", path,
			"kind", kind,
			"err", err,
		)
	}
}

func (w *Worker) processZIP(ctx context.Context, srcPath, filename string) (outcome, error) {
	slog.Info("ZIP identificado, iniciando extração e processamento",
		"path", srcPath,
	)

	ext := filepath.Ext(filename)
	baseName := strings.TrimSuffix(filename, ext)

	workDir, err := os.MkdirTemp(w.cfg.TmpDir, baseName+"_")
	if err != nil {
		slog.Error("erro criando diretório temporário para ZIP",
			"zip", srcPath,
			"err", err,
		)
		return outcomeRetry, err
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			slog.Warn("falha ao remover diretório temporário",
				"work_dir", workDir,
				"err", err,
			)
		}
	}()

	zr, err := zip.OpenReader(srcPath)
	if err != nil {
		slog.Error("erro abrindo ZIP",
			"path", srcPath,
			"err", err,
		)
		w.moveTo(w.cfg.FailedDir, srcPath, filename)
		return outcomeFailed, err
	}

	var (
		docCount     int
		successCount int
		dupCount     int
		failCount    int
	)

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		name := f.Name
		kind := queue.KindOf(name)
		if kind != queue.KindXML && kind != queue.KindOFX {
			slog.Info("arquivo dentro do ZIP ignorado",
				"zip", srcPath,
				"inner_name", name,
			)
			continue
		}

		docCount++

		innerFileName := filepath.Base(name)
		innerPath := filepath.Join(workDir, fmt.Sprintf("%03d_%s", docCount, innerFileName))
		if err := extract(f, innerPath); err != nil {
			slog.Error("erro extraindo entrada do ZIP",
				"zip", srcPath,
				"inner_name", name,
				"err", err,
			)
			failCount++
			continue
		}

		out, _ := w.importFile(ctx, innerPath, kind, importer.SourceZIP)
		switch out {
		case outcomeProcessed:
			successCount++
			w.moveTo(w.cfg.ProcessedDir, innerPath, innerFileName)
		case outcomeIgnored:
			dupCount++
			w.moveTo(w.cfg.IgnoredDir, innerPath, innerFileName)
		default:
			// o ZIP não é reprocessado parcialmente
			failCount++
			w.moveTo(w.cfg.FailedDir, innerPath, innerFileName)
		}
	}
	zr.Close()

	if docCount == 0 {
		slog.Warn("ZIP sem XML ou OFX", "path", srcPath)
		w.moveTo(w.cfg.IgnoredDir, srcPath, filename)
		return outcomeIgnored, nil
	}

	if err := os.Remove(srcPath); err != nil {
		slog.Warn("falha ao remover ZIP original após processamento",
			"path", srcPath,
			"err", err,
		)
	}

	slog.Info("processamento de ZIP concluído",
		"zip", srcPath,
		"total", docCount,
		"success", successCount,
		"duplicatas", dupCount,
		"failed", failCount,
	)
	return outcomeProcessed, nil
}

func extract(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// readLimited lê o arquivo inteiro, recusando o que passar de limit. O
// extrator repete a checagem com o erro tipado.
func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if limit <= 0 {
		return io.ReadAll(f)
	}
	return io.ReadAll(io.LimitReader(f, limit+1))
}

func (w *Worker) moveTo(dir, srcPath, filename string) {
	destPath := uniquePath(dir, filename)
	if err := os.Rename(srcPath, destPath); err != nil {
		slog.Error("erro movendo arquivo",
			"src", srcPath,
			"dest", destPath,
			"err", err,
		)
		return
	}
	slog.Info("arquivo movido",
		"src", srcPath,
		"dest", destPath,
	)
}

func uniquePath(dir, filename string) string {
	dest := filepath.Join(dir, filename)
	if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
		return dest
	}
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, time.Now().UnixNano(), ext))
}
