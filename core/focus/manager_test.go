package focus

import (
	"testing"
	"time"
)

type recordingObserver struct {
	name    string
	changes chan State
}

func newRecordingObserver(name string) *recordingObserver {
	return &recordingObserver{name: name, changes: make(chan State, 16)}
}

func (o *recordingObserver) OnFocusChanged(focus State) {
	o.changes <- focus
}

func (o *recordingObserver) await(t *testing.T, want State) {
	t.Helper()
	select {
	case got := <-o.changes:
		if got != want {
			t.Fatalf("observer %s: expected focus %s, got %s", o.name, want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("observer %s: timed out waiting for focus %s", o.name, want)
	}
}

func (o *recordingObserver) awaitSilence(t *testing.T) {
	t.Helper()
	select {
	case got := <-o.changes:
		t.Fatalf("observer %s: expected no focus change, got %s", o.name, got)
	case <-time.After(100 * time.Millisecond):
	}
}

func awaitRelease(t *testing.T, released <-chan bool, want bool) {
	t.Helper()
	select {
	case got := <-released:
		if got != want {
			t.Fatalf("expected release to resolve %t, got %t", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for release to resolve")
	}
}

func TestAcquireUnknownChannelFailsImmediately(t *testing.T) {
	m := NewManager()
	defer m.Close()

	if ok := m.AcquireChannel("Sideband", newRecordingObserver("sideband"), "activity-1"); ok {
		t.Fatalf("expected acquiring an unknown channel to fail")
	}
}

func TestSingleAcquireWinsForeground(t *testing.T) {
	m := NewManager()
	defer m.Close()

	content := newRecordingObserver("content")
	if ok := m.AcquireChannel(ContentChannelName, content, "activity-1"); !ok {
		t.Fatalf("expected acquiring the content channel to be accepted")
	}

	content.await(t, Foreground)
}

func TestPriorityBeatsAcquisitionOrder(t *testing.T) {
	m := NewManager()
	defer m.Close()

	content := newRecordingObserver("content")
	dialog := newRecordingObserver("dialog")

	m.AcquireChannel(ContentChannelName, content, "activity-content")
	content.await(t, Foreground)

	m.AcquireChannel(DialogChannelName, dialog, "activity-dialog")
	dialog.await(t, Foreground)
	content.await(t, Background)

	if got := m.ForegroundChannelName(); got != DialogChannelName {
		t.Fatalf("expected %s to hold the foreground, got %q", DialogChannelName, got)
	}
}

func TestAcquiringLowerPriorityChannelStaysBackground(t *testing.T) {
	m := NewManager()
	defer m.Close()

	dialog := newRecordingObserver("dialog")
	content := newRecordingObserver("content")

	m.AcquireChannel(DialogChannelName, dialog, "activity-dialog")
	dialog.await(t, Foreground)

	m.AcquireChannel(ContentChannelName, content, "activity-content")
	content.await(t, Background)

	// The foreground holder must not see any change at all.
	dialog.awaitSilence(t)
}

func TestPreemptionDemotesExactlyOnce(t *testing.T) {
	m := NewManager()
	defer m.Close()

	content := newRecordingObserver("content")
	alerts := newRecordingObserver("alerts")
	dialog := newRecordingObserver("dialog")

	m.AcquireChannel(ContentChannelName, content, "activity-content")
	content.await(t, Foreground)

	m.AcquireChannel(AlertsChannelName, alerts, "activity-alerts")
	alerts.await(t, Foreground)
	content.await(t, Background)

	m.AcquireChannel(DialogChannelName, dialog, "activity-dialog")
	dialog.await(t, Foreground)
	alerts.await(t, Background)

	// Content was already background; no further demotion may reach it.
	content.awaitSilence(t)
}

func TestReleasePromotesNextHighestPriority(t *testing.T) {
	m := NewManager()
	defer m.Close()

	content := newRecordingObserver("content")
	dialog := newRecordingObserver("dialog")

	m.AcquireChannel(ContentChannelName, content, "activity-content")
	content.await(t, Foreground)
	m.AcquireChannel(DialogChannelName, dialog, "activity-dialog")
	dialog.await(t, Foreground)
	content.await(t, Background)

	awaitRelease(t, m.ReleaseChannel(DialogChannelName, dialog), true)
	dialog.await(t, None)
	content.await(t, Foreground)

	if got := m.ForegroundChannelName(); got != ContentChannelName {
		t.Fatalf("expected %s to be promoted, got %q", ContentChannelName, got)
	}
}

func TestReleasingLastChannelLeavesNoForeground(t *testing.T) {
	m := NewManager()
	defer m.Close()

	dialog := newRecordingObserver("dialog")
	m.AcquireChannel(DialogChannelName, dialog, "activity-dialog")
	dialog.await(t, Foreground)

	awaitRelease(t, m.ReleaseChannel(DialogChannelName, dialog), true)
	dialog.await(t, None)

	if got := m.ForegroundChannelName(); got != "" {
		t.Fatalf("expected no foreground channel, got %q", got)
	}
}

func TestStaleReleaseChangesNothing(t *testing.T) {
	m := NewManager()
	defer m.Close()

	dialog := newRecordingObserver("dialog")
	impostor := newRecordingObserver("impostor")

	m.AcquireChannel(DialogChannelName, dialog, "activity-dialog")
	dialog.await(t, Foreground)

	awaitRelease(t, m.ReleaseChannel(DialogChannelName, impostor), false)
	dialog.awaitSilence(t)

	if got := m.ForegroundChannelName(); got != DialogChannelName {
		t.Fatalf("expected %s to keep the foreground, got %q", DialogChannelName, got)
	}
}

func TestReleaseUnknownChannelResolvesFalse(t *testing.T) {
	m := NewManager()
	defer m.Close()

	awaitRelease(t, m.ReleaseChannel("Sideband", newRecordingObserver("sideband")), false)
}

func TestStopForegroundActivityReleasesCurrentActivity(t *testing.T) {
	m := NewManager()
	defer m.Close()

	content := newRecordingObserver("content")
	dialog := newRecordingObserver("dialog")

	m.AcquireChannel(ContentChannelName, content, "activity-content")
	content.await(t, Foreground)
	m.AcquireChannel(DialogChannelName, dialog, "activity-dialog")
	dialog.await(t, Foreground)
	content.await(t, Background)

	m.StopForegroundActivity()
	dialog.await(t, None)
	content.await(t, Foreground)
}

func TestStopForegroundActivityIsFencedByActivityID(t *testing.T) {
	m := NewManager()
	defer m.Close()

	first := newRecordingObserver("first")
	second := newRecordingObserver("second")

	m.AcquireChannel(DialogChannelName, first, "activity-1")
	first.await(t, Foreground)

	// Hold the worker so the rebind and the stop are queued back to back:
	// the stop captures activity-1 but only runs after activity-2 took over.
	gate := make(chan struct{})
	m.exec.Submit(func() { <-gate })
	m.AcquireChannel(DialogChannelName, second, "activity-2")
	m.StopForegroundActivity()
	close(gate)

	first.await(t, None)
	second.await(t, Foreground)
	// If fencing failed the stale stop would now evict activity-2.
	second.awaitSilence(t)

	if got := m.ForegroundChannelName(); got != DialogChannelName {
		t.Fatalf("expected %s to keep the foreground, got %q", DialogChannelName, got)
	}
}

func TestCloseResolvesQueuedReleaseFutures(t *testing.T) {
	m := NewManager()

	dialog := newRecordingObserver("dialog")
	m.AcquireChannel(DialogChannelName, dialog, "activity-1")
	dialog.await(t, Foreground)

	// Hold the worker so the release is still queued when the manager shuts
	// down; its future must resolve false instead of hanging its caller.
	gate := make(chan struct{})
	m.exec.Submit(func() { <-gate })
	released := m.ReleaseChannel(DialogChannelName, dialog)

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()
	time.Sleep(50 * time.Millisecond)
	close(gate)

	awaitRelease(t, released, false)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the manager to close")
	}
}

func TestReleaseAfterCloseResolvesFalse(t *testing.T) {
	m := NewManager()

	dialog := newRecordingObserver("dialog")
	m.AcquireChannel(DialogChannelName, dialog, "activity-1")
	dialog.await(t, Foreground)

	m.Close()

	awaitRelease(t, m.ReleaseChannel(DialogChannelName, dialog), false)
}

func TestEvictionNotifiesPreviousObserver(t *testing.T) {
	m := NewManager()
	defer m.Close()

	first := newRecordingObserver("first")
	second := newRecordingObserver("second")

	m.AcquireChannel(DialogChannelName, first, "activity-1")
	first.await(t, Foreground)

	m.AcquireChannel(DialogChannelName, second, "activity-2")
	first.await(t, None)

	if got := m.ForegroundChannelName(); got != DialogChannelName {
		t.Fatalf("expected %s to stay foreground across eviction, got %q", DialogChannelName, got)
	}
}

func TestDuplicateConfigurationKeepsFirstSeen(t *testing.T) {
	m := NewManager(WithChannelConfigs([]ChannelConfig{
		{Name: "Primary", Priority: 0},
		{Name: "Shadow", Priority: 0},
		{Name: "Primary", Priority: 3},
		{Name: "Secondary", Priority: 1},
	}))
	defer m.Close()

	if ok := m.AcquireChannel("Shadow", newRecordingObserver("shadow"), "activity-1"); ok {
		t.Fatalf("expected duplicate-priority channel to have been dropped")
	}

	primary := newRecordingObserver("primary")
	secondary := newRecordingObserver("secondary")

	m.AcquireChannel("Secondary", secondary, "activity-2")
	secondary.await(t, Foreground)

	// Primary kept priority 0 from its first configuration entry.
	m.AcquireChannel("Primary", primary, "activity-3")
	primary.await(t, Foreground)
	secondary.await(t, Background)
}

func TestForegroundIsUniqueAfterInterleavedOperations(t *testing.T) {
	m := NewManager()
	defer m.Close()

	observers := map[string]*recordingObserver{
		DialogChannelName:  newRecordingObserver("dialog"),
		AlertsChannelName:  newRecordingObserver("alerts"),
		ContentChannelName: newRecordingObserver("content"),
	}
	latest := map[string]State{}

	m.AcquireChannel(ContentChannelName, observers[ContentChannelName], "a1")
	m.AcquireChannel(AlertsChannelName, observers[AlertsChannelName], "a2")
	m.AcquireChannel(DialogChannelName, observers[DialogChannelName], "a3")
	awaitRelease(t, m.ReleaseChannel(AlertsChannelName, observers[AlertsChannelName]), true)

	// Drain every notification, keeping only the latest focus per channel.
	deadline := time.After(2 * time.Second)
	for {
		pending := false
		for name, observer := range observers {
			select {
			case focus := <-observer.changes:
				latest[name] = focus
				pending = true
			case <-deadline:
				t.Fatalf("timed out draining focus notifications")
			default:
			}
		}
		if !pending && len(latest) == len(observers) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	foregrounded := 0
	for _, focus := range latest {
		if focus == Foreground {
			foregrounded++
		}
	}
	if foregrounded != 1 {
		t.Fatalf("expected exactly one foreground channel, got %d (%v)", foregrounded, latest)
	}
	if latest[DialogChannelName] != Foreground {
		t.Fatalf("expected dialog to win the foreground, got %v", latest)
	}
}
