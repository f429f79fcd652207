package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AuditWriter persists config_history rows. Implemented by the storage
// package; kept as a narrow interface here to avoid an import cycle.
type AuditWriter interface {
	SaveConfigAudit(entry AuditEntry) error
}

// ChangeFunc is invoked after a successful hot-reload with the old and
// new snapshots.
type ChangeFunc func(old, new *Snapshot)

// Loader loads the configuration document from path, validates it,
// publishes it as an atomically-readable Snapshot, and re-reads on
// external file-change notification (via fsnotify, driven by viper) or
// on an explicit Reload call. On validation failure it retains the prior
// snapshot and logs a warning, per §4.9 and §7 ("Config: invalid
// document. The loader retains the prior snapshot; the core continues").
type Loader struct {
	path      string
	logger    *zap.Logger
	audit     AuditWriter
	current   atomic.Pointer[Snapshot]
	v         *viper.Viper
	onChange  []ChangeFunc
	changedBy string
}

// NewLoader loads path once (fatal if it fails — "a startup with no
// valid config is fatal", §7) and wires up a viper-backed file watcher
// for subsequent hot-reloads. audit may be nil to skip history writes.
func NewLoader(path string, audit AuditWriter, logger *zap.Logger) (*Loader, error) {
	l := &Loader{path: path, logger: logger, audit: audit, changedBy: "file-watch"}

	snap, err := l.load()
	if err != nil {
		return nil, fmt.Errorf("config: initial load: %w", err)
	}
	l.current.Store(snap)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}
	l.v = viper.New()
	l.v.SetConfigFile(absPath)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: viper read: %w", err)
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.logger.Info("config: file change detected", zap.String("file", e.Name))
		if err := l.Reload(); err != nil {
			l.logger.Warn("config: reload after file change failed", zap.Error(err))
		}
	})
	l.v.WatchConfig()

	return l, nil
}

// Current returns the currently published Snapshot. Safe for concurrent use.
func (l *Loader) Current() *Snapshot {
	return l.current.Load()
}

// OnChange registers a callback invoked after every successful reload.
func (l *Loader) OnChange(fn ChangeFunc) {
	l.onChange = append(l.onChange, fn)
}

// Reload re-reads and validates the document, atomically swapping the
// published Snapshot on success. On failure, the prior Snapshot is kept.
func (l *Loader) Reload() error {
	newSnap, err := l.load()
	if err != nil {
		l.logger.Warn("config: reload failed, retaining prior snapshot", zap.Error(err))
		return err
	}

	old := l.current.Load()
	if old != nil && newSnap.Version == old.Version {
		l.logger.Debug("config: reload produced identical version, skipping", zap.String("version", old.Version))
		return nil
	}

	l.current.Store(newSnap)
	l.logger.Info("config: reloaded", zap.String("old_version", versionOf(old)), zap.String("new_version", newSnap.Version))

	if l.audit != nil {
		entry := AuditEntry{
			Timestamp:      time.Now().UTC(),
			Version:        newSnap.Version,
			SectionChanged: "full_document",
			OldValue:       versionOf(old),
			NewValue:       newSnap.Version,
			ChangedBy:      l.changedBy,
		}
		if err := l.audit.SaveConfigAudit(entry); err != nil {
			l.logger.Warn("config: failed to persist audit entry", zap.Error(err))
		}
	}

	for _, fn := range l.onChange {
		fn(old, newSnap)
	}
	return nil
}

func versionOf(s *Snapshot) string {
	if s == nil {
		return ""
	}
	return s.Version
}

func (l *Loader) load() (*Snapshot, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", l.path, err)
	}
	snap, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	snap.LoadedAt = time.Now().UTC()
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return snap, nil
}
