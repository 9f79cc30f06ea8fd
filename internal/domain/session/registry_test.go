package session

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIsolatedCreate(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeIsolated)
	ctx := context.Background()
	rec := newRecorder("conn-1")
	assert.Nil(t, reg.Attach(rec))

	s, err := reg.Create(ctx, "conn-1", "https://example.com", CreateOptions{Width: 1024})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, "conn-1", s.Owner())
	waitForFrames(t, rec, 1)

	opts := launcher.Options()
	require.Len(t, opts, 1)
	assert.Equal(t, "https://example.com", opts[0].URL)
	assert.Equal(t, 1024, opts[0].Width)
	assert.Equal(t, 600, opts[0].Height)

	got, ok := reg.Lookup("conn-1")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = reg.Lookup("conn-2")
	assert.False(t, ok)
}

func TestRegistryIsolatedRejectsSecondCreate(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeIsolated)
	ctx := context.Background()
	reg.Attach(newRecorder("conn-1"))

	_, err := reg.Create(ctx, "conn-1", "https://example.com", CreateOptions{})
	require.NoError(t, err)

	_, err = reg.Create(ctx, "conn-1", "https://example.org", CreateOptions{})
	assert.ErrorIs(t, err, ErrSessionExists)
	assert.Equal(t, 1, launcher.Launches())
	assert.Equal(t, 1, launcher.LiveHandles())
}

func TestRegistryIsolatedRestart(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeIsolated)
	ctx := context.Background()
	reg.Attach(newRecorder("conn-1"))

	for i := 0; i < 3; i++ {
		_ = reg.Destroy(ctx, "conn-1")
		_, err := reg.Create(ctx, "conn-1", "https://example.com", CreateOptions{})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, launcher.Launches())
	assert.Equal(t, 1, launcher.LiveHandles())
	assert.Len(t, reg.List(), 1)
}

func TestRegistryIsolatedConnectionsAreIndependent(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeIsolated)
	ctx := context.Background()
	a, b := newRecorder("a"), newRecorder("b")
	reg.Attach(a)
	reg.Attach(b)

	sa, err := reg.Create(ctx, "a", "https://example.com", CreateOptions{})
	require.NoError(t, err)
	sb, err := reg.Create(ctx, "b", "https://example.org", CreateOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, sa.ID(), sb.ID())
	assert.Equal(t, 2, launcher.Launches())

	waitForFrames(t, a, 1)
	waitForFrames(t, b, 1)
	for _, f := range a.Frames() {
		assert.Equal(t, sa.ID(), f.SessionID)
	}

	require.NoError(t, reg.Destroy(ctx, "a"))
	assert.Equal(t, StateStopped, sa.State())
	assert.Equal(t, StateRunning, sb.State())
}

func TestRegistryCaptureFailureLeavesStoppedSession(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeIsolated)
	ctx := context.Background()
	rec := newRecorder("conn-1")
	reg.Attach(rec)

	s, err := reg.Create(ctx, "conn-1", "https://example.com", CreateOptions{})
	require.NoError(t, err)
	launcher.Last().FailScreenshot.Store(true)

	waitForState(t, s, StateStopped)
	<-s.Done()
	assert.True(t, launcher.Last().Closed())
	assert.Empty(t, rec.Errors())

	err = reg.Navigate(ctx, "conn-1", "https://example.org")
	assert.ErrorIs(t, err, ErrSessionStopped)

	// The stopped session is replaced on the next start.
	s2, err := reg.Create(ctx, "conn-1", "https://example.com", CreateOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, s.ID(), s2.ID())
}

func TestRegistryLaunchFailure(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeIsolated)
	ctx := context.Background()
	reg.Attach(newRecorder("conn-1"))
	launcher.FailLaunch.Store(true)

	s, err := reg.Create(ctx, "conn-1", "https://example.com", CreateOptions{})
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrLaunchFailure)

	_, ok := reg.Lookup("conn-1")
	assert.False(t, ok)
	assert.Empty(t, reg.List())
}

func TestRegistryCreateRequiresAttach(t *testing.T) {
	reg, _ := newTestRegistry(t, ModeIsolated)
	_, err := reg.Create(context.Background(), "ghost", "https://example.com", CreateOptions{})
	assert.ErrorIs(t, err, ErrNotAttached)
}

func TestRegistryDestroyDuringLaunch(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeIsolated)
	launcher.LaunchDelay = 500 * time.Millisecond
	ctx := context.Background()
	reg.Attach(newRecorder("conn-1"))

	errCh := make(chan error, 1)
	go func() {
		_, err := reg.Create(ctx, "conn-1", "https://example.com", CreateOptions{})
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		_, ok := reg.Lookup("conn-1")
		return ok
	}, waitFor, 5*time.Millisecond)
	require.NoError(t, reg.Destroy(ctx, "conn-1"))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSessionStopped)
		assert.NotErrorIs(t, err, ErrLaunchFailure)
	case <-time.After(waitFor):
		t.Fatal("create did not return")
	}
	assert.Zero(t, launcher.LiveHandles())
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.metrics.Launches.WithLabelValues("isolated", "aborted")))
	assert.Zero(t, testutil.ToFloat64(reg.metrics.Launches.WithLabelValues("isolated", "error")))
}

func TestRegistryCancelledLaunchIsAborted(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeShared)
	launcher.LaunchDelay = 500 * time.Millisecond
	a, b := newRecorder("conn-a"), newRecorder("conn-b")
	reg.Attach(a)
	reg.Attach(b)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := reg.Create(ctx, "conn-a", "https://example.com", CreateOptions{})
		errCh <- err
	}()

	// conn-b joins while the launch is still pending.
	require.Eventually(t, func() bool {
		return len(reg.List()) == 1
	}, waitFor, 5*time.Millisecond)
	reg.mu.Lock()
	reg.shared.subscribe(b)
	reg.mu.Unlock()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSessionStopped)
	case <-time.After(waitFor):
		t.Fatal("create did not return")
	}

	assert.Empty(t, a.Errors())
	assert.Empty(t, b.Errors())
	assert.Equal(t, 1, b.Stopped())
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.metrics.Launches.WithLabelValues("shared", "aborted")))
	assert.Empty(t, reg.List())
}

func TestRegistrySharedJoinNavigates(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeShared)
	ctx := context.Background()
	a, b := newRecorder("a"), newRecorder("b")
	reg.Attach(a)
	reg.Attach(b)

	sa, err := reg.Create(ctx, "a", "https://example.com", CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, SharedOwner, sa.Owner())

	sb, err := reg.Create(ctx, "b", "https://example.org", CreateOptions{})
	require.NoError(t, err)
	assert.Same(t, sa, sb)
	assert.Equal(t, 1, launcher.Launches())
	assert.Equal(t, 2, sa.SubscriberCount())

	require.Eventually(t, func() bool {
		nav := launcher.Last().Navigations()
		return len(nav) == 1 && nav[0] == "https://example.org"
	}, waitFor, 10*time.Millisecond)

	// Both subscribers see the same frames.
	waitForFrames(t, a, 2)
	waitForFrames(t, b, 2)
}

func TestRegistrySharedAttachWhileRunning(t *testing.T) {
	reg, _ := newTestRegistry(t, ModeShared)
	ctx := context.Background()
	a := newRecorder("a")
	reg.Attach(a)

	s, err := reg.Create(ctx, "a", "https://example.com", CreateOptions{})
	require.NoError(t, err)

	late := newRecorder("late")
	assert.Same(t, s, reg.Attach(late))
	waitForFrames(t, late, 1)

	got, ok := reg.Lookup("late")
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestRegistrySharedLastSubscriberStops(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeShared)
	ctx := context.Background()
	a, b := newRecorder("a"), newRecorder("b")
	reg.Attach(a)

	s, err := reg.Create(ctx, "a", "https://example.com", CreateOptions{})
	require.NoError(t, err)
	reg.Attach(b)
	require.Equal(t, 2, s.SubscriberCount())

	// Not the last subscriber: the browser keeps running.
	require.NoError(t, reg.Destroy(ctx, "b"))
	assert.Equal(t, StateRunning, s.State())
	assert.False(t, launcher.Last().Closed())

	require.NoError(t, reg.Destroy(ctx, "a"))
	assert.Equal(t, StateStopped, s.State())
	assert.True(t, launcher.Last().Closed())

	// b is still connected but no longer subscribed, so it hears the stop.
	assert.Equal(t, 1, b.Stopped())
	assert.Zero(t, a.Stopped())

	_, ok := reg.Lookup("a")
	assert.False(t, ok)
}

func TestRegistrySharedDetach(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeShared)
	ctx := context.Background()
	a := newRecorder("a")
	reg.Attach(a)

	_, err := reg.Create(ctx, "a", "https://example.com", CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, reg.Detach(ctx, "a"))
	assert.True(t, launcher.Last().Closed())
	assert.Empty(t, reg.List())

	// Detaching an unknown connection is not an error.
	assert.NoError(t, reg.Detach(ctx, "nobody"))
}

func TestRegistrySharedRelaunchAfterFailure(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeShared)
	ctx := context.Background()
	a, b := newRecorder("a"), newRecorder("b")
	reg.Attach(a)
	reg.Attach(b)

	s1, err := reg.Create(ctx, "a", "https://example.com", CreateOptions{})
	require.NoError(t, err)
	_, err = reg.Create(ctx, "b", "", CreateOptions{})
	require.NoError(t, err)

	launcher.Last().FailScreenshot.Store(true)
	waitForState(t, s1, StateStopped)

	s2, err := reg.Create(ctx, "a", "https://example.com", CreateOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID(), s2.ID())
	assert.Equal(t, 2, launcher.Launches())
	assert.Equal(t, 2, s2.SubscriberCount())
}

func TestRegistryRelaunchKeepsPinned(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeShared)
	ctx := context.Background()

	s1, err := reg.AutoStart(ctx, "https://example.com")
	require.NoError(t, err)
	launcher.Last().FailScreenshot.Store(true)
	waitForState(t, s1, StateStopped)

	a := newRecorder("a")
	reg.Attach(a)

	// Pinning the old session races with the relaunch reading it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		s1.setPinned()
	}()
	s2, err := reg.Create(ctx, "a", "https://example.org", CreateOptions{})
	<-done
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID(), s2.ID())
	assert.True(t, s2.isPinned())
}

func TestRegistryAutoStart(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeShared)
	ctx := context.Background()

	s, err := reg.AutoStart(ctx, "https://example.com")
	require.NoError(t, err)
	assert.True(t, s.isPinned())

	viewer := newRecorder("viewer")
	reg.Attach(viewer)
	waitForFrames(t, viewer, 1)

	require.NoError(t, reg.Input(ctx, "viewer", Input{Type: InputClick, X: 5, Y: 5}))
	require.Eventually(t, func() bool {
		return len(launcher.Last().Clicks()) == 1
	}, waitFor, 10*time.Millisecond)

	// The server subscription keeps the browser alive after the viewer leaves.
	require.NoError(t, reg.Detach(ctx, "viewer"))
	assert.Equal(t, StateRunning, s.State())
}

func TestRegistryAutoStartRequiresShared(t *testing.T) {
	reg, _ := newTestRegistry(t, ModeIsolated)
	_, err := reg.AutoStart(context.Background(), "https://example.com")
	assert.Error(t, err)
}

func TestRegistryUpdateFrameRate(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeIsolated)
	ctx := context.Background()
	reg.Attach(newRecorder("conn-1"))

	// Stored for the next session when none is running.
	rate, err := reg.UpdateFrameRate("conn-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rate)

	s, err := reg.Create(ctx, "conn-1", "https://example.com", CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.FrameRate())

	rate, err = reg.UpdateFrameRate("conn-1", 11)
	require.NoError(t, err)
	assert.Equal(t, 10, rate)
	assert.Equal(t, 10, s.FrameRate())
	assert.Equal(t, 100*time.Millisecond, s.Interval())

	_, err = reg.UpdateFrameRate("ghost", 5)
	assert.ErrorIs(t, err, ErrNotAttached)
	assert.Equal(t, 1, launcher.Launches())
}

func TestRegistryNavigateWithoutSession(t *testing.T) {
	reg, _ := newTestRegistry(t, ModeIsolated)
	reg.Attach(newRecorder("conn-1"))

	err := reg.Navigate(context.Background(), "conn-1", "https://example.com")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	err = reg.Input(context.Background(), "conn-1", Input{Type: InputClick})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistryClose(t *testing.T) {
	reg, launcher := newTestRegistry(t, ModeIsolated)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		reg.Attach(newRecorder(id))
		_, err := reg.Create(ctx, id, "https://example.com", CreateOptions{})
		require.NoError(t, err)
	}
	require.Len(t, reg.List(), 3)

	require.NoError(t, reg.Close(ctx))
	assert.Zero(t, launcher.LiveHandles())
	assert.Empty(t, reg.List())

	_, err := reg.Create(ctx, "a", "https://example.com", CreateOptions{})
	assert.ErrorIs(t, err, ErrSessionStopped)
}
