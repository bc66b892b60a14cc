package focus

// State is the focus a channel observer can hold on its channel.
type State string

const (
	// None means the channel is not observed; its claimant must not produce
	// output and should release any held resources.
	None State = "NONE"
	// Foreground is granted to exactly one channel at a time, the highest
	// priority observed channel.
	Foreground State = "FOREGROUND"
	// Background is granted to observed channels that lost the foreground to
	// a higher priority channel.
	Background State = "BACKGROUND"
)

// Observer is notified whenever the focus of the channel it claimed changes.
//
// Notifications are delivered synchronously on the arbitration worker, so an
// observer must not call back into the Manager from OnFocusChanged.
type Observer interface {
	OnFocusChanged(focus State)
}

// Channel is a named, prioritized exclusive-access slot for audio output.
// A lower priority value means a higher priority channel; 0 is the highest.
//
// All mutations happen on the Manager's worker. The Manager additionally
// guards the activity id with its mutex because stop requests fence on it
// from the calling goroutine.
type Channel struct {
	name     string
	priority uint

	observer   Observer
	activityID string
	focus      State
}

func newChannel(name string, priority uint) *Channel {
	return &Channel{name: name, priority: priority, focus: None}
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Priority() uint { return c.priority }

// Focus returns the last focus granted to this channel.
func (c *Channel) Focus() State { return c.focus }

// setFocus records the new focus and notifies the current observer when the
// focus actually changed.
func (c *Channel) setFocus(focus State) {
	if c.focus == focus {
		return
	}

	c.focus = focus
	if c.observer != nil {
		c.observer.OnFocusChanged(focus)
	}
}

func (c *Channel) setObserver(observer Observer) {
	c.observer = observer
}

func (c *Channel) hasObserver() bool { return c.observer != nil }

// isObservedBy reports whether observer currently holds this channel. Used to
// fence stale releases.
func (c *Channel) isObservedBy(observer Observer) bool {
	return c.observer != nil && c.observer == observer
}
