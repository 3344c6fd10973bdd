// Package persistence stores the monitoring state document on disk, keeping
// a backup of the previous version and optionally archiving snapshots.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
)

// DefaultFile is the state file used when none is configured.
const DefaultFile = "persistence_data.json"

// BackupSuffix is appended to the state file name for the previous version.
const BackupSuffix = ".backup"

const archiveTimeout = 10 * time.Second

// Archiver uploads a copy of each saved document.
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) error
}

// Manager reads and writes the MonitoringState document.
type Manager struct {
	path     string
	archiver Archiver
	logger   *logrus.Logger
	now      func() time.Time

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewManager creates a manager for path. archiver may be nil.
func NewManager(path string, archiver Archiver, logger *logrus.Logger) *Manager {
	if path == "" {
		path = DefaultFile
	}
	return &Manager{
		path:     path,
		archiver: archiver,
		logger:   logger,
		now:      time.Now,
	}
}

// Path returns the primary state file path.
func (m *Manager) Path() string {
	return m.path
}

// BackupPath returns the backup file path.
func (m *Manager) BackupPath() string {
	return m.path + BackupSuffix
}

// Save copies the current file to the backup and replaces it with state.
// A failed backup is logged and does not block the write.
func (m *Manager) Save(state models.MonitoringState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	state.LastUpdated = &now
	fillDefaults(&state)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode monitoring state: %w", utils.ErrPersistence, err)
	}

	if err := m.backupLocked(); err != nil {
		m.logger.WithError(err).WithField("file", m.BackupPath()).Warn("Failed to back up monitoring state")
	}

	if err := writeFileAtomic(m.path, data); err != nil {
		return fmt.Errorf("%w: write %s: %w", utils.ErrPersistence, m.path, err)
	}

	m.logger.WithField("file", m.path).Debug("Monitoring state saved")
	m.archive(data, now)
	return nil
}

// Load reads the state file, falling back to the backup and then to the
// default state. It never fails.
func (m *Manager) Load() models.MonitoringState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := readState(m.path)
	if err == nil {
		m.logger.WithField("file", m.path).Info("Monitoring state loaded")
		return state
	}
	if !errors.Is(err, fs.ErrNotExist) {
		m.logger.WithError(err).WithField("file", m.path).Error("Failed to load monitoring state")
	}

	state, backupErr := readState(m.BackupPath())
	if backupErr == nil {
		m.logger.WithField("file", m.BackupPath()).Info("Monitoring state loaded from backup")
		return state
	}
	if !errors.Is(backupErr, fs.ErrNotExist) {
		m.logger.WithError(backupErr).WithField("file", m.BackupPath()).Error("Failed to load backup monitoring state")
	}

	m.logger.Info("Using default monitoring state")
	return models.DefaultMonitoringState()
}

// Clear resets the stored document to the default state.
func (m *Manager) Clear() error {
	return m.Save(models.DefaultMonitoringState())
}

// StartAutoSave persists snapshot() every interval until ctx is cancelled,
// then performs a final save.
func (m *Manager) StartAutoSave(ctx context.Context, interval time.Duration, snapshot func() models.MonitoringState) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				if err := m.Save(snapshot()); err != nil {
					m.logger.WithError(err).Error("Final monitoring state save failed")
				}
				return
			case <-ticker.C:
				if err := m.Save(snapshot()); err != nil {
					m.logger.WithError(err).Error("Auto-save of monitoring state failed")
				}
			}
		}
	}()
}

// Wait blocks until the auto-save loop and pending archive uploads finish.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) backupLocked() error {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return writeFileAtomic(m.BackupPath(), data)
}

func (m *Manager) archive(data []byte, at time.Time) {
	if m.archiver == nil {
		return
	}
	name := fmt.Sprintf("%s-%s", filepath.Base(m.path), at.Format("20060102T150405Z"))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := m.archiver.Archive(ctx, name, data); err != nil {
			m.logger.WithError(err).WithField("name", name).Warn("Failed to archive monitoring state")
		}
	}()
}

func readState(path string) (models.MonitoringState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.MonitoringState{}, err
	}

	state := models.DefaultMonitoringState()
	if err := json.Unmarshal(data, &state); err != nil {
		return models.MonitoringState{}, fmt.Errorf("decode %s: %w", path, err)
	}
	fillDefaults(&state)
	return state, nil
}

func fillDefaults(state *models.MonitoringState) {
	if state.Arbitrage.Assets == nil {
		state.Arbitrage.Assets = map[string][]string{}
	}
	if state.MarketView.Symbols == nil {
		state.MarketView.Symbols = map[string][]string{}
	}
}

// writeFileAtomic writes data to a temporary sibling and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
