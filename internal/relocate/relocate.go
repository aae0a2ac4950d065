package relocate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nhle/eventcal/internal/config"
	"github.com/nhle/eventcal/internal/store"
)

// ErrRelocationFailed is returned when the storage file could not be moved.
// The previous file, configuration and session are left in place.
var ErrRelocationFailed = errors.New("relocation failed")

// State names a step of a relocation. States are reported in logs.
type State string

const (
	StateIdle           State = "idle"
	StateNoExistingFile State = "no_existing_file"
	StatePreparing      State = "preparing"
	StateCopying        State = "copying"
	StateCommitting     State = "committing"
	StateCleanup        State = "cleanup"
	StateSuccess        State = "success"
	StateFailed         State = "failed"
)

// ConfigStore is the durable record holding the storage directory.
type ConfigStore interface {
	Read() (*config.Config, error)
	Write(cfg *config.Config) error
}

// Coordinator moves the storage file to a new directory while the process
// keeps running.
type Coordinator struct {
	session *store.Session
	configs ConfigStore
	log     *zap.Logger

	copyFile   func(ctx context.Context, src, dst string) error
	removeFile func(path string) error

	running atomic.Bool
}

// New returns a Coordinator relocating the file behind session and
// recording the new directory in configs.
func New(session *store.Session, configs ConfigStore, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		session:    session,
		configs:    configs,
		log:        log.Named("relocate"),
		copyFile:   copyFile,
		removeFile: os.Remove,
	}
}

// Relocate moves the storage file into newPath, points the configuration
// at newPath and reopens the session there.
//
// The configuration is only rewritten after the copy is complete, so a
// failed copy leaves everything as it was. Removing the old file happens
// last and is best-effort: once the new configuration is written the copy
// is authoritative and a leftover old file is only logged.
//
// Repository calls issued during a relocation wait for it to finish. A
// second relocation started while one runs fails with store.ErrStorageBusy.
func (c *Coordinator) Relocate(ctx context.Context, newPath string) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("relocating storage: %w", store.ErrStorageBusy)
	}
	defer c.running.Store(false)

	if newPath == "" {
		return fmt.Errorf("%w: target directory is empty", ErrRelocationFailed)
	}
	newPath, err := filepath.Abs(newPath)
	if err != nil {
		return fmt.Errorf("%w: resolving %s: %w", ErrRelocationFailed, newPath, err)
	}

	cfg, err := c.configs.Read()
	if err != nil {
		return fmt.Errorf("%w: reading config: %w", ErrRelocationFailed, err)
	}

	m := &move{
		Coordinator: c,
		ctx:         ctx,
		cfg:         cfg,
		newPath:     newPath,
		oldFile:     filepath.Join(cfg.StoragePath, store.FileName),
		newFile:     filepath.Join(newPath, store.FileName),
	}
	m.log = c.log.With(zap.String("old_file", m.oldFile), zap.String("new_file", m.newFile))

	if sameFile(m.oldFile, m.newFile) {
		m.log.Info("storage already at target directory")
		return nil
	}

	m.enter(StateIdle)
	if err := c.session.Exclusive(m.run); err != nil {
		m.enter(StateFailed)
		return err
	}
	m.enter(StateSuccess)
	return nil
}

// move carries the state of a single relocation.
type move struct {
	*Coordinator
	ctx     context.Context
	cfg     *config.Config
	newPath string
	oldFile string
	newFile string
	log     *zap.Logger
}

func (m *move) enter(state State) {
	m.log.Info("relocation state", zap.String("state", string(state)))
}

// run executes steps that need the session closed.
func (m *move) run(h *store.Suspended) error {
	if _, err := os.Stat(m.oldFile); errors.Is(err, fs.ErrNotExist) {
		m.enter(StateNoExistingFile)
		if err := os.MkdirAll(m.newPath, 0o755); err != nil {
			return fmt.Errorf("%w: creating %s: %w", ErrRelocationFailed, m.newPath, err)
		}
		return m.commit(h)
	} else if err != nil {
		return fmt.Errorf("%w: inspecting %s: %w", ErrRelocationFailed, m.oldFile, err)
	}

	m.enter(StatePreparing)
	if _, err := os.Stat(m.newFile); err == nil {
		return fmt.Errorf("%w: %s already exists", ErrRelocationFailed, m.newFile)
	}
	if err := os.MkdirAll(m.newPath, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrRelocationFailed, m.newPath, err)
	}

	m.enter(StateCopying)
	if err := m.copyFile(m.ctx, m.oldFile, m.newFile); err != nil {
		m.discardCopy()
		return fmt.Errorf("%w: copying %s: %w", ErrRelocationFailed, m.oldFile, err)
	}

	if err := m.commit(h); err != nil {
		m.discardCopy()
		return err
	}

	m.enter(StateCleanup)
	m.cleanup()
	return nil
}

// commit records the new directory and points the session at the new file.
// On failure the previous configuration is restored; the caller's
// Exclusive reopens the previous file.
func (m *move) commit(h *store.Suspended) error {
	m.enter(StateCommitting)

	next := *m.cfg
	next.StoragePath = m.newPath
	if err := m.configs.Write(&next); err != nil {
		return fmt.Errorf("%w: writing config: %w", ErrRelocationFailed, err)
	}

	if err := h.Reopen(m.newFile); err != nil {
		if restoreErr := m.configs.Write(m.cfg); restoreErr != nil {
			m.log.Error("restoring previous config", zap.Error(restoreErr))
		}
		return fmt.Errorf("%w: opening %s: %w", ErrRelocationFailed, m.newFile, err)
	}
	return nil
}

// discardCopy removes a copy that never became authoritative.
func (m *move) discardCopy() {
	if err := m.removeFile(m.newFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.log.Warn("removing abandoned copy", zap.Error(err))
	}
}

// cleanup removes the old storage file and its journal siblings. Failures
// are logged only; the relocation is already committed.
func (m *move) cleanup() {
	for _, path := range []string{m.oldFile, m.oldFile + "-wal", m.oldFile + "-shm"} {
		if err := m.removeFile(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.log.Warn("removing old storage file", zap.String("path", path), zap.Error(err))
		}
	}
}

// copyFile copies src to dst byte for byte. Data is written to a temporary
// file next to dst and renamed into place after it is synced, so dst is
// either absent or complete. Cancelling ctx aborts the copy.
func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".eventcal-copy-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: in}); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}

// ctxReader stops reading once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
