package speech

import (
	"context"
	"io"
	"time"

	"github.com/koralvoice/koral-core/core/focus"
	"github.com/koralvoice/koral-core/core/messaging"
)

// MediaPlayer is the audio engine that plays one speech source at a time.
// Play and Stop are fire-and-forget: the engine confirms what actually
// happened through the playback callbacks, on its own goroutine.
type MediaPlayer interface {
	SetSource(source io.Reader) error
	Play() error
	Stop() error
	Offset() time.Duration
	SetCallbacks(callbacks PlaybackCallbacks)
}

// PlaybackCallbacks is how the media player reports playback lifecycle
// transitions back to the synthesizer.
type PlaybackCallbacks struct {
	OnPlaybackStarted  func()
	OnPlaybackFinished func()
	OnPlaybackError    func(message string)
}

// MessageSender delivers outward events to the remote service.
type MessageSender interface {
	SendEvent(ctx context.Context, event messaging.Event) error
}

// FocusManager is the slice of the arbitration engine the synthesizer needs:
// claiming and relinquishing its speech channel.
type FocusManager interface {
	AcquireChannel(channelName string, observer focus.Observer, activityID string) bool
	ReleaseChannel(channelName string, observer focus.Observer) <-chan bool
}

// ContextManager collects device state for the remote service. SetState
// records the latest playback snapshot; RequestContext asks for a full
// context build, answered asynchronously through the requester's
// OnContextAvailable or OnContextFailure.
type ContextManager interface {
	SetState(report StateReport, stateRequestToken uint) error
	RequestContext(requester ContextRequester)
}

// ContextRequester receives the outcome of a RequestContext call.
type ContextRequester interface {
	OnContextAvailable(jsonContext string)
	OnContextFailure(err error)
}

type SynthesizerOption func(*Synthesizer)

// WithChannelName overrides the channel the synthesizer claims for speech
// output. Defaults to the dialog channel.
func WithChannelName(channelName string) SynthesizerOption {
	return func(s *Synthesizer) { s.channelName = channelName }
}

// WithStateCallback registers a callback invoked on the synthesizer's worker
// whenever the playback state changes.
func WithStateCallback(callback func(state PlaybackState)) SynthesizerOption {
	return func(s *Synthesizer) {
		if callback != nil {
			s.stateCallbacks = append(s.stateCallbacks, callback)
		}
	}
}
