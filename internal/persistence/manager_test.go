package persistence

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func sampleState() models.MonitoringState {
	state := models.DefaultMonitoringState()
	state.Arbitrage.Active = true
	state.Arbitrage.Assets = map[string][]string{"BTC-USDT": {"binance", "okx"}}
	state.Arbitrage.Thresholds = models.ThresholdConfig{MinProfitPercentage: 0.3, MinProfitAbsolute: 2}
	state.MarketView.Symbols = map[string][]string{"ETH-USDT": {"bybit"}}
	return state
}

type recordingArchiver struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingArchiver) Archive(_ context.Context, name string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return nil
}

func TestManager_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	m := NewManager(path, nil, testLogger())

	require.NoError(t, m.Save(sampleState()))

	loaded := NewManager(path, nil, testLogger()).Load()
	want := sampleState()
	assert.Equal(t, want.Arbitrage.Active, loaded.Arbitrage.Active)
	assert.Equal(t, want.Arbitrage.Assets, loaded.Arbitrage.Assets)
	assert.Equal(t, want.Arbitrage.Thresholds, loaded.Arbitrage.Thresholds)
	assert.Equal(t, want.MarketView.Active, loaded.MarketView.Active)
	assert.Equal(t, want.MarketView.Symbols, loaded.MarketView.Symbols)
	require.NotNil(t, loaded.LastUpdated)
}

func TestManager_SaveWritesBackupOfPreviousVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	m := NewManager(path, nil, testLogger())

	first := sampleState()
	require.NoError(t, m.Save(first))
	_, err := os.Stat(m.BackupPath())
	assert.True(t, os.IsNotExist(err), "no backup before the first overwrite")

	second := sampleState()
	second.Arbitrage.Active = false
	require.NoError(t, m.Save(second))

	data, err := os.ReadFile(m.BackupPath())
	require.NoError(t, err)
	var backup models.MonitoringState
	require.NoError(t, json.Unmarshal(data, &backup))
	assert.True(t, backup.Arbitrage.Active)

	assert.False(t, m.Load().Arbitrage.Active)
}

func TestManager_DocumentLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	m := NewManager(path, nil, testLogger())
	require.NoError(t, m.Save(sampleState()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "arbitrage_monitoring")
	assert.Contains(t, raw, "market_view_monitoring")
	assert.Contains(t, raw, "last_updated")
	assert.Contains(t, string(data), "\n  \"arbitrage_monitoring\"")
}

func TestManager_LoadFallsBackToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	m := NewManager(path, nil, testLogger())

	require.NoError(t, m.Save(sampleState()))
	require.NoError(t, m.Save(sampleState()))
	require.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0o644))

	loaded := m.Load()
	assert.True(t, loaded.Arbitrage.Active)
	assert.Equal(t, []string{"binance", "okx"}, loaded.Arbitrage.Assets["BTC-USDT"])
}

func TestManager_LoadDefaultsWhenNothingReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	m := NewManager(path, nil, testLogger())

	loaded := m.Load()
	assert.Equal(t, models.DefaultMonitoringState(), loaded)

	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))
	require.NoError(t, os.WriteFile(m.BackupPath(), []byte("nope"), 0o644))
	loaded = m.Load()
	assert.False(t, loaded.Arbitrage.Active)
	assert.Equal(t, models.DefaultThresholds(), loaded.Arbitrage.Thresholds)
	assert.NotNil(t, loaded.Arbitrage.Assets)
}

func TestManager_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	m := NewManager(path, nil, testLogger())
	require.NoError(t, m.Save(sampleState()))

	require.NoError(t, m.Clear())
	loaded := m.Load()
	assert.False(t, loaded.Arbitrage.Active)
	assert.Empty(t, loaded.Arbitrage.Assets)
	assert.Empty(t, loaded.MarketView.Symbols)
}

func TestManager_SaveFailsOnUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	m := NewManager(filepath.Join(blocker, "state.json"), nil, testLogger())
	assert.Error(t, m.Save(sampleState()))
}

func TestManager_Archives(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	archiver := &recordingArchiver{}
	m := NewManager(path, archiver, testLogger())
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, m.Save(sampleState()))
	m.Wait()

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	assert.Equal(t, []string{"state.json-20260102T030405Z"}, archiver.names)
}

func TestManager_AutoSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	m := NewManager(path, nil, testLogger())

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	m.StartAutoSave(ctx, 10*time.Millisecond, func() models.MonitoringState {
		calls.Add(1)
		return sampleState()
	})

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	m.Wait()

	assert.True(t, m.Load().Arbitrage.Active)
}
