package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscal-intake/internal/config"
	"fiscal-intake/internal/queue"
)

type fakePublisher struct {
	jobs []queue.Job
}

func (f *fakePublisher) PublishJob(_ context.Context, job queue.Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func newTestWatcher(t *testing.T, pub queue.Publisher) (*Watcher, *config.Config) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		IncomingDir:   filepath.Join(root, "incoming"),
		ProcessingDir: filepath.Join(root, "processing"),
		ProcessedDir:  filepath.Join(root, "processed"),
		FailedDir:     filepath.Join(root, "failed"),
		TmpDir:        filepath.Join(root, "tmp"),
		IgnoredDir:    filepath.Join(root, "ignored"),
	}
	for _, d := range cfg.Dirs() {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	w, err := New(cfg, pub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.watcher.Close() })
	w.stableDelay = time.Millisecond
	return w, cfg
}

func drop(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestHandleIncomingFile(t *testing.T) {
	pub := &fakePublisher{}
	w, cfg := newTestWatcher(t, pub)
	ctx := context.Background()

	w.handleIncomingFile(ctx, drop(t, cfg.IncomingDir, "nota.xml", "<NFe/>"), queue.SourceEvent)
	w.handleIncomingFile(ctx, drop(t, cfg.IncomingDir, "extrato.ofx", "OFXHEADER:100"), queue.SourceEvent)
	w.handleIncomingFile(ctx, drop(t, cfg.IncomingDir, "foto.png", "png"), queue.SourceEvent)
	w.handleIncomingFile(ctx, drop(t, cfg.IncomingDir, "nota.xml:Zone.Identifier", "[ZoneTransfer]"), queue.SourceEvent)

	assert.FileExists(t, filepath.Join(cfg.ProcessingDir, "nota.xml"))
	assert.FileExists(t, filepath.Join(cfg.ProcessingDir, "extrato.ofx"))
	assert.FileExists(t, filepath.Join(cfg.IgnoredDir, "foto.png"))
	assert.NoFileExists(t, filepath.Join(cfg.IncomingDir, "nota.xml:Zone.Identifier"))

	require.Len(t, pub.jobs, 2)
	assert.Equal(t, queue.KindXML, pub.jobs[0].Kind)
	assert.Equal(t, filepath.Join(cfg.ProcessingDir, "nota.xml"), pub.jobs[0].Path)
	assert.Equal(t, queue.KindOFX, pub.jobs[1].Kind)
	assert.Equal(t, queue.SourceEvent, pub.jobs[1].Source)
}

func TestProcessExistingFilesMarksBacklog(t *testing.T) {
	pub := &fakePublisher{}
	w, cfg := newTestWatcher(t, pub)
	drop(t, cfg.IncomingDir, "lote.zip", "PK")

	w.processExistingFiles(context.Background())

	require.Len(t, pub.jobs, 1)
	assert.Equal(t, queue.KindZIP, pub.jobs[0].Kind)
	assert.Equal(t, queue.SourceBacklog, pub.jobs[0].Source)
}

func TestHandleIncomingFileKeepsExisting(t *testing.T) {
	w, cfg := newTestWatcher(t, nil)
	drop(t, cfg.ProcessingDir, "nota.xml", "antiga")

	w.handleIncomingFile(context.Background(), drop(t, cfg.IncomingDir, "nota.xml", "nova"), queue.SourceEvent)

	old, err := os.ReadFile(filepath.Join(cfg.ProcessingDir, "nota.xml"))
	require.NoError(t, err)
	assert.Equal(t, "antiga", string(old))

	entries, err := os.ReadDir(cfg.ProcessingDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWaitFileStableEmptyFile(t *testing.T) {
	w, cfg := newTestWatcher(t, nil)
	p := drop(t, cfg.IncomingDir, "vazio.xml", "")
	assert.False(t, w.waitFileStable(p))
	assert.False(t, w.waitFileStable(filepath.Join(cfg.IncomingDir, "sumiu.xml")))
}
