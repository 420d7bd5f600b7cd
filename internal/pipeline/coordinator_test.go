package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/db"
	"github.com/hpungsan/flightrecorder/internal/errors"
	"github.com/hpungsan/flightrecorder/internal/monitor"
	"github.com/hpungsan/flightrecorder/internal/platform/platformtest"
	"github.com/hpungsan/flightrecorder/internal/privacy"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func monitorConfig() monitor.Config {
	return monitor.Config{PollInterval: tick, MinContentLength: 1, MaxContentLength: 1000}
}

func newStore(t *testing.T) *db.Store {
	t.Helper()
	s, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newFilter(mode privacy.Mode) *privacy.Filter {
	cfg := privacy.DefaultFilterConfig()
	cfg.Mode = mode
	return privacy.NewFilter(cfg, nil)
}

func startPipeline(t *testing.T, store Store, filter *privacy.Filter, monitors ...monitor.Monitor) *Coordinator {
	t.Helper()
	c := New(store, filter, Options{ChannelSize: 4})
	for _, m := range monitors {
		require.NoError(t, c.Add(m))
	}
	require.NoError(t, c.StartAll(context.Background()))
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

func storedContents(t *testing.T, s *db.Store) []string {
	t.Helper()
	cs, err := s.Query(context.Background(), db.QueryFilter{})
	require.NoError(t, err)
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Content
	}
	return out
}

func TestCoordinator_ClipboardToStore(t *testing.T) {
	store := newStore(t)
	cb := platformtest.NewClipboard("hello")
	m := monitor.NewClipboardMonitor(monitorConfig(), cb, platformtest.StaticApp("Notes"), nil)
	c := startPipeline(t, store, newFilter(privacy.ModeBlock), m)

	require.Eventually(t, func() bool { return c.Stats().Stored == 1 }, waitFor, tick)

	cb.Set("world")
	require.Eventually(t, func() bool { return c.Stats().Stored == 2 }, waitFor, tick)

	require.Equal(t, []string{"world", "hello"}, storedContents(t, store))

	cs, err := store.GetByApp(context.Background(), "Notes", 10)
	require.NoError(t, err)
	require.Len(t, cs, 2)
}

func TestCoordinator_BlockedNeverStored(t *testing.T) {
	store := newStore(t)
	cb := platformtest.NewClipboard("api_key=abcdef1234567890ghij")
	m := monitor.NewClipboardMonitor(monitorConfig(), cb, nil, nil)
	c := startPipeline(t, store, newFilter(privacy.ModeBlock), m)

	require.Eventually(t, func() bool { return c.Stats().Blocked == 1 }, waitFor, tick)

	cb.Set("harmless")
	require.Eventually(t, func() bool { return c.Stats().Stored == 1 }, waitFor, tick)

	require.Equal(t, []string{"harmless"}, storedContents(t, store))
}

func TestCoordinator_RedactedStoredWithRedactedHash(t *testing.T) {
	store := newStore(t)
	cb := platformtest.NewClipboard("my ssn is 123-45-6789")
	m := monitor.NewClipboardMonitor(monitorConfig(), cb, nil, nil)
	c := startPipeline(t, store, newFilter(privacy.ModeRedact), m)

	require.Eventually(t, func() bool { return c.Stats().Stored == 1 }, waitFor, tick)

	cs, err := store.GetRecent(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "my ssn is [REDACTED]", cs[0].Content)
	require.Equal(t, capture.Hash("my ssn is [REDACTED]"), cs[0].ContentHash)
	require.NotEqual(t, capture.Hash("my ssn is 123-45-6789"), cs[0].ContentHash)
	require.Equal(t, uint64(1), c.Stats().Redacted)
}

func TestCoordinator_WarnOnlyStoresOriginal(t *testing.T) {
	store := newStore(t)
	c := New(store, newFilter(privacy.ModeWarnOnly), Options{})

	out := c.process(context.Background(), capture.New(capture.TypeClipboard, "ssn 123-45-6789", nil))
	require.Equal(t, OutcomeStored, out)
	require.Equal(t, []string{"ssn 123-45-6789"}, storedContents(t, store))
}

func TestCoordinator_ExcludedAppDropped(t *testing.T) {
	store := newStore(t)
	cb := platformtest.NewClipboard("vault entry")
	m := monitor.NewClipboardMonitor(monitorConfig(), cb, platformtest.StaticApp("1password"), nil)
	c := startPipeline(t, store, newFilter(privacy.ModeBlock), m)

	require.Eventually(t, func() bool { return c.Stats().Excluded == 1 }, waitFor, tick)
	require.Empty(t, storedContents(t, store))

	// Runtime changes to the exclusion list take effect immediately
	require.True(t, c.Filter().UnexcludeApp("1Password"))
	cb.Set("vault entry two")
	require.Eventually(t, func() bool { return c.Stats().Stored == 1 }, waitFor, tick)
}

func TestCoordinator_DuplicateAcrossMonitors(t *testing.T) {
	store := newStore(t)
	c := New(store, nil, Options{})
	ctx := context.Background()

	require.Equal(t, OutcomeStored, c.process(ctx, capture.New(capture.TypeClipboard, "shared", nil)))
	require.Equal(t, OutcomeDuplicate, c.process(ctx, capture.New(capture.TypeTextField, "shared", nil)))

	st := c.Stats()
	require.Equal(t, uint64(2), st.Received)
	require.Equal(t, uint64(1), st.Stored)
	require.Equal(t, uint64(1), st.Duplicates)
}

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (f *failingStore) Insert(context.Context, capture.Capture) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 0, false, fmt.Errorf("disk I/O error")
}

func TestCoordinator_StoreFailureDoesNotStopMonitors(t *testing.T) {
	store := &failingStore{}
	cb := platformtest.NewClipboard("first")
	m := monitor.NewClipboardMonitor(monitorConfig(), cb, nil, nil)
	c := startPipeline(t, store, nil, m)

	require.Eventually(t, func() bool { return c.Stats().Failed == 1 }, waitFor, tick)
	cb.Set("second")
	require.Eventually(t, func() bool { return c.Stats().Failed == 2 }, waitFor, tick)
	require.True(t, m.IsRunning())
}

func TestCoordinator_PermissionFailureIsolated(t *testing.T) {
	store := newStore(t)
	cb := platformtest.NewClipboard("still captured")
	clip := monitor.NewClipboardMonitor(monitorConfig(), cb, nil, nil)
	perm := platformtest.NewPermission(false)
	field := monitor.NewTextFieldMonitor(monitor.TextFieldConfig{Config: monitorConfig()}, &platformtest.Fields{}, perm, nil)

	c := New(store, nil, Options{})
	require.NoError(t, c.Add(clip))
	require.NoError(t, c.Add(field))
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	err := c.StartAll(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrPermissionDenied))

	require.Eventually(t, func() bool { return c.Stats().Stored == 1 }, waitFor, tick)

	statuses := c.Statuses()
	require.Len(t, statuses, 2)
	require.Equal(t, monitor.TypeClipboard, statuses[0].Type)
	require.True(t, statuses[0].IsRunning)
	require.Equal(t, uint64(1), statuses[0].CaptureCount)
	require.Equal(t, monitor.TypeAccessibility, statuses[1].Type)
	require.False(t, statuses[1].IsRunning)
	require.False(t, statuses[1].HasPermission)
	require.Equal(t, perm.Instructions(), statuses[1].Message)

	// Granting permission later lets the monitor start on its own
	perm.SetGranted(true)
	require.NoError(t, c.Start(context.Background(), monitor.TypeAccessibility))
	require.True(t, field.IsRunning())
}

func TestCoordinator_StopOne(t *testing.T) {
	store := newStore(t)
	clip := monitor.NewClipboardMonitor(monitorConfig(), platformtest.NewClipboard("x"), nil, nil)
	c := startPipeline(t, store, nil, clip)

	require.NoError(t, c.Stop(monitor.TypeClipboard))
	require.False(t, clip.IsRunning())
	require.Equal(t, "Monitor stopped", c.Statuses()[0].Message)

	err := c.Stop(monitor.TypeKeystroke)
	require.True(t, errors.Is(err, errors.ErrMonitorNotFound))

	err = c.Start(context.Background(), monitor.TypeKeystroke)
	require.True(t, errors.Is(err, errors.ErrMonitorNotFound))

	require.NoError(t, c.Start(context.Background(), monitor.TypeClipboard))
	require.True(t, clip.IsRunning())
}

func TestCoordinator_AddRejectsDuplicateType(t *testing.T) {
	c := New(newStore(t), nil, Options{})
	require.NoError(t, c.Add(monitor.NewClipboardMonitor(monitorConfig(), platformtest.NewClipboard(""), nil, nil)))

	err := c.Add(monitor.NewClipboardMonitor(monitorConfig(), platformtest.NewClipboard(""), nil, nil))
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestCoordinator_ShutdownStopsAndDrains(t *testing.T) {
	store := newStore(t)
	cb := platformtest.NewClipboard("before shutdown")
	m := monitor.NewClipboardMonitor(monitorConfig(), cb, nil, nil)

	c := New(store, nil, Options{ChannelSize: 1})
	require.NoError(t, c.Add(m))
	require.NoError(t, c.StartAll(context.Background()))

	require.Eventually(t, func() bool { return c.Stats().Received == 1 }, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	require.False(t, m.IsRunning())
	require.Equal(t, c.Stats().Received, c.Stats().Stored, "queued captures are written before Shutdown returns")

	require.NoError(t, c.Shutdown(context.Background()), "second Shutdown is a no-op")
	require.Error(t, c.StartAll(context.Background()))
	require.Error(t, c.Add(m))
}

func TestCoordinator_ShutdownWithoutStart(t *testing.T) {
	c := New(newStore(t), nil, Options{})
	require.NoError(t, c.Shutdown(context.Background()))
}
