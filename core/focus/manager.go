// Package focus arbitrates exclusive access to a fixed set of named,
// prioritized audio output channels. Claimants acquire a channel, are
// notified of focus changes, and release the channel when done; the Manager
// keeps the invariant that at most one channel holds the foreground.
package focus

import (
	"sort"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/koralvoice/koral-core/internal/executor"
)

// Manager takes requests to acquire and release channels and updates the
// focus of every observed channel so that only the highest priority observed
// channel is foregrounded. All mutations run on a single sequential worker;
// concurrent callers are serialized without blocking on each other's
// notifications.
type Manager struct {
	// channels holds every configured channel, keyed by name. The map is
	// built once at construction and never mutated afterwards.
	channels map[string]*Channel

	// active holds the currently observed channels in descending priority
	// order (lowest priority value first). Guarded by mu together with the
	// channels' activity ids; everything else about a channel is touched
	// only on the worker.
	active []*Channel

	exec *executor.Executor
	mu   sync.Mutex

	// pendingReleases tracks release futures that have not resolved yet, so
	// Close can resolve the ones whose queued work never ran. Guarded by mu.
	pendingReleases map[chan bool]struct{}

	configs []ChannelConfig
}

type ManagerOption func(*Manager)

// WithChannelConfigs replaces the default dialog/alerts/content layout. The
// configs are deep-copied so later mutation by the caller has no effect.
func WithChannelConfigs(configs []ChannelConfig) ManagerOption {
	return func(m *Manager) {
		copied := []ChannelConfig{}
		copier.Copy(&copied, configs)
		m.configs = copied
	}
}

// NewManager creates the channels up front from the configured list. No two
// channels may share a name or a priority: entries that repeat either are
// dropped, keeping the first occurrence.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		channels:        map[string]*Channel{},
		exec:            executor.New(),
		pendingReleases: map[chan bool]struct{}{},
		configs:         DefaultChannelConfigs(),
	}

	for _, opt := range opts {
		opt(m)
	}

	seenPriorities := map[uint]bool{}
	for _, config := range m.configs {
		if _, ok := m.channels[config.Name]; ok || seenPriorities[config.Priority] {
			logger.Warn("dropping duplicate channel configuration", "channel", config.String())
			continue
		}

		m.channels[config.Name] = newChannel(config.Name, config.Priority)
		seenPriorities[config.Priority] = true
	}

	return m
}

// Close stops the arbitration worker. Pending operations that have not
// started are dropped; release futures they carried resolve false.
func (m *Manager) Close() {
	m.exec.Shutdown()

	m.mu.Lock()
	dropped := make([]chan bool, 0, len(m.pendingReleases))
	for result := range m.pendingReleases {
		dropped = append(dropped, result)
	}
	m.pendingReleases = map[chan bool]struct{}{}
	m.mu.Unlock()

	for _, result := range dropped {
		result <- false
	}
}

// AcquireChannel grants observer the channel called channelName, evicting any
// previous observer, and refocuses all observed channels. It returns false
// immediately if the channel does not exist; otherwise it returns true
// optimistically and the actual focus change is delivered asynchronously
// through observer.OnFocusChanged.
func (m *Manager) AcquireChannel(channelName string, observer Observer, activityID string) bool {
	channel := m.getChannel(channelName)
	if channel == nil {
		logger.Error("failed to acquire channel", "reason", "channel not found", "channel", channelName)
		return false
	}

	m.exec.Submit(func() { m.acquireChannelHelper(channel, observer, activityID) })
	return true
}

// ReleaseChannel gives up observer's claim on the channel called channelName
// and promotes the next highest priority observed channel. The returned
// future resolves true once the release has been applied, or false when the
// channel does not exist or observer is not its current claimant.
func (m *Manager) ReleaseChannel(channelName string, observer Observer) <-chan bool {
	result := make(chan bool, 1)

	channel := m.getChannel(channelName)
	if channel == nil {
		logger.Error("failed to release channel", "reason", "channel not found", "channel", channelName)
		result <- false
		return result
	}

	m.mu.Lock()
	m.pendingReleases[result] = struct{}{}
	m.mu.Unlock()

	if ok := m.exec.Submit(func() { m.releaseChannelHelper(channel, observer, result) }); !ok {
		m.resolveRelease(result, false)
	}
	return result
}

// resolveRelease delivers the release outcome exactly once: whichever of the
// queued work and the Close drop path gets to the future first wins.
func (m *Manager) resolveRelease(result chan bool, value bool) {
	m.mu.Lock()
	_, pending := m.pendingReleases[result]
	delete(m.pendingReleases, result)
	m.mu.Unlock()

	if pending {
		result <- value
	}
}

// StopForegroundActivity releases the current foreground channel on behalf of
// its claimant, but only if the activity bound to it has not changed by the
// time the queued work runs. Fire-and-forget; a stale request is a no-op.
func (m *Manager) StopForegroundActivity() {
	m.mu.Lock()
	foreground := m.highestPriorityActiveChannelLocked()
	var activityID string
	if foreground != nil {
		activityID = foreground.activityID
	}
	m.mu.Unlock()

	if foreground == nil {
		return
	}

	m.exec.Submit(func() { m.stopForegroundActivityHelper(foreground, activityID) })
}

// ForegroundChannelName reports the name of the current foreground channel,
// or an empty string when no channel is observed.
func (m *Manager) ForegroundChannelName() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if foreground := m.highestPriorityActiveChannelLocked(); foreground != nil {
		return foreground.name
	}
	return ""
}

func (m *Manager) getChannel(channelName string) *Channel {
	return m.channels[channelName]
}

func (m *Manager) acquireChannelHelper(channel *Channel, observer Observer, activityID string) {
	// The previous claimant loses the channel before the new one is
	// installed, even when both are the same component re-acquiring for a
	// fresh activity.
	if channel.hasObserver() {
		channel.observer.OnFocusChanged(None)
	}

	m.mu.Lock()
	channel.activityID = activityID
	m.removeFromActiveLocked(channel)
	m.insertActiveLocked(channel)
	m.mu.Unlock()

	channel.setObserver(observer)

	m.foregroundHighestPriorityActiveChannel()

	if !m.isChannelForegrounded(channel) {
		// A freshly acquired channel that did not win the foreground is told
		// so directly, even when the channel was already backgrounded.
		channel.focus = Background
		observer.OnFocusChanged(Background)
	}

	logger.Debug("channel acquired",
		"channel", channel.name, "activityID", activityID, "focus", string(channel.focus))
}

func (m *Manager) releaseChannelHelper(channel *Channel, observer Observer, result chan bool) {
	if !channel.isObservedBy(observer) {
		logger.Warn("ignoring stale channel release", "channel", channel.name)
		m.resolveRelease(result, false)
		return
	}

	m.mu.Lock()
	m.removeFromActiveLocked(channel)
	channel.activityID = ""
	m.mu.Unlock()

	channel.setFocus(None)
	channel.setObserver(nil)

	m.foregroundHighestPriorityActiveChannel()

	logger.Debug("channel released", "channel", channel.name)
	m.resolveRelease(result, true)
}

func (m *Manager) stopForegroundActivityHelper(channel *Channel, activityID string) {
	m.mu.Lock()
	stale := channel.activityID != activityID
	m.mu.Unlock()
	if stale {
		// The foreground activity already changed; the stop request no
		// longer applies.
		return
	}

	observer := channel.observer
	if observer == nil {
		return
	}

	discard := make(chan bool, 1)
	m.releaseChannelHelper(channel, observer, discard)
}

// foregroundHighestPriorityActiveChannel recomputes the unique foreground
// winner after a mutation of the active set. The winner is promoted first,
// then any channel still marked foreground is demoted. Runs on the worker.
func (m *Manager) foregroundHighestPriorityActiveChannel() {
	m.mu.Lock()
	winner := m.highestPriorityActiveChannelLocked()
	activeChannels := make([]*Channel, len(m.active))
	copy(activeChannels, m.active)
	m.mu.Unlock()

	for _, channel := range activeChannels {
		if channel == winner {
			channel.setFocus(Foreground)
		} else if channel.Focus() == Foreground {
			channel.setFocus(Background)
		}
	}
}

func (m *Manager) isChannelForegrounded(channel *Channel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highestPriorityActiveChannelLocked() == channel
}

func (m *Manager) highestPriorityActiveChannelLocked() *Channel {
	if len(m.active) == 0 {
		return nil
	}
	return m.active[0]
}

func (m *Manager) insertActiveLocked(channel *Channel) {
	position := sort.Search(len(m.active), func(i int) bool {
		return m.active[i].priority >= channel.priority
	})

	m.active = append(m.active, nil)
	copy(m.active[position+1:], m.active[position:])
	m.active[position] = channel
}

func (m *Manager) removeFromActiveLocked(channel *Channel) {
	for i, active := range m.active {
		if active == channel {
			m.active = append(m.active[:i], m.active[i+1:]...)
			return
		}
	}
}
