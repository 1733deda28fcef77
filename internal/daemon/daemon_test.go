package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgdocs/internal/config"
	"git.home.luguber.info/inful/pkgdocs/internal/docbuilder"
)

type fakeIndex struct {
	mu        sync.Mutex
	updates   []string
	updateErr error
}

func (f *fakeIndex) Update(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, url)
	return f.updateErr
}

func (f *fakeIndex) Walk(_ context.Context, fn func(name, version string) error) error {
	return fn("foo", "1.0.0")
}

func (f *fakeIndex) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type fakeWorld struct {
	mu       sync.Mutex
	releases []string
	err      error
}

func (f *fakeWorld) BuildWorld(ctx context.Context, src docbuilder.PackageSource) error {
	err := src.Walk(ctx, func(name, version string) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.releases = append(f.releases, name+"-"+version)
		return nil
	})
	if err != nil {
		return err
	}
	return f.err
}

func (f *fakeWorld) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.releases)
}

func runDaemon(t *testing.T, d *Daemon) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return cancel, done
}

func TestDaemon_RunsImmediatelyAndRepeats(t *testing.T) {
	ix := &fakeIndex{}
	w := &fakeWorld{}
	d, err := New(config.DaemonConfig{Interval: 20 * time.Millisecond}, "https://example.com/index.git", w, ix, nil)
	require.NoError(t, err)

	cancel, done := runDaemon(t, d)
	require.Eventually(t, func() bool { return d.Runs() >= 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.GreaterOrEqual(t, w.count(), 2)
	assert.GreaterOrEqual(t, ix.updateCount(), 2)
	assert.Equal(t, "https://example.com/index.git", ix.updates[0])
}

func TestDaemon_SkipsUpdateWithoutURL(t *testing.T) {
	ix := &fakeIndex{}
	w := &fakeWorld{}
	d, err := New(config.DaemonConfig{Interval: time.Hour}, "", w, ix, nil)
	require.NoError(t, err)

	cancel, done := runDaemon(t, d)
	require.Eventually(t, func() bool { return d.Runs() >= 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Zero(t, ix.updateCount())
	assert.Equal(t, 1, w.count())
}

func TestDaemon_UpdateFailureSkipsBuild(t *testing.T) {
	ix := &fakeIndex{updateErr: errors.New("remote unavailable")}
	w := &fakeWorld{}
	d, err := New(config.DaemonConfig{Interval: time.Hour}, "https://example.com/index.git", w, ix, nil)
	require.NoError(t, err)

	cancel, done := runDaemon(t, d)
	require.Eventually(t, func() bool { return ix.updateCount() >= 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Zero(t, w.count())
	assert.Zero(t, d.Runs())
}

func TestDaemon_BuildErrorStillCountsRun(t *testing.T) {
	w := &fakeWorld{err: context.Canceled}
	d, err := New(config.DaemonConfig{Interval: time.Hour}, "", w, &fakeIndex{}, nil)
	require.NoError(t, err)

	cancel, done := runDaemon(t, d)
	require.Eventually(t, func() bool { return d.Runs() >= 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestDaemon_InvalidSchedule(t *testing.T) {
	t.Run("cron", func(t *testing.T) {
		d, err := New(config.DaemonConfig{Cron: "not a cron"}, "", &fakeWorld{}, &fakeIndex{}, nil)
		require.NoError(t, err)
		require.Error(t, d.Run(t.Context()))
	})

	t.Run("interval", func(t *testing.T) {
		d, err := New(config.DaemonConfig{}, "", &fakeWorld{}, &fakeIndex{}, nil)
		require.NoError(t, err)
		require.Error(t, d.Run(t.Context()))
	})
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(config.DaemonConfig{Interval: time.Hour}, "", nil, &fakeIndex{}, nil)
	require.Error(t, err)
}
