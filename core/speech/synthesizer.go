// Package speech implements the capability agent that turns Speak directives
// into audio output. It claims the speech channel from the focus arbitration
// engine, starts and stops the media player as its focus changes, and reports
// the playback lifecycle back to the delivering subsystem, the remote
// service and the device context.
package speech

import (
	"context"
	"fmt"
	"sync"

	"github.com/koralvoice/koral-core/core/directives"
	"github.com/koralvoice/koral-core/core/focus"
	"github.com/koralvoice/koral-core/core/messaging"
	"github.com/koralvoice/koral-core/internal/executor"
	"go.opentelemetry.io/otel/codes"
)

// PlaybackState describes whether the synthesizer is currently producing
// audio. Finished is both the initial and the per-task terminal state.
type PlaybackState string

const (
	StatePlaying  PlaybackState = "PLAYING"
	StateFinished PlaybackState = "FINISHED"
)

// StateReport is the snapshot of the synthesizer pushed into the device
// context for the remote service.
type StateReport struct {
	Token              string        `json:"token"`
	OffsetMilliseconds int64         `json:"offsetInMilliseconds"`
	Activity           PlaybackState `json:"playerActivity"`
}

// Synthesizer is the Speak-directive playback state machine.
//
// Three independent goroutine families feed it: directive delivery
// (PreHandle/Handle/Cancel), the arbitration worker (OnFocusChanged) and the
// media player (playback callbacks). All mutations of the task registry run
// on the synthesizer's own worker; the current/desired state pair is
// additionally mutex-guarded because OnFocusChanged reads and writes it from
// the arbitration worker.
type Synthesizer struct {
	player       MediaPlayer
	sender       MessageSender
	focusManager FocusManager
	contexts     ContextManager
	attachments  directives.AttachmentProvider
	exceptions   directives.ExceptionSender

	channelName string

	exec *executor.Executor

	// mu guards currentState, desiredState and currentFocus; stateChanged is
	// signalled whenever currentState moves so OnFocusChanged can wait for
	// the transition it requested to take effect.
	mu           sync.Mutex
	stateChanged *sync.Cond
	currentState PlaybackState
	desiredState PlaybackState
	currentFocus focus.State

	// Worker-only fields.
	currentTask   *speakTask
	tasks         map[string]*speakTask
	pendingEvents []messaging.Event

	stateCallbacks []func(state PlaybackState)

	baseContext context.Context
	closeOnce   sync.Once
}

// NewSynthesizer wires the synthesizer to its collaborators. Every
// collaborator is required; the channel defaults to the dialog channel.
func NewSynthesizer(
	player MediaPlayer,
	sender MessageSender,
	focusManager FocusManager,
	contexts ContextManager,
	attachments directives.AttachmentProvider,
	exceptions directives.ExceptionSender,
	opts ...SynthesizerOption,
) (*Synthesizer, error) {
	if player == nil {
		return nil, fmt.Errorf("media player is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("message sender is required")
	}
	if focusManager == nil {
		return nil, fmt.Errorf("focus manager is required")
	}
	if contexts == nil {
		return nil, fmt.Errorf("context manager is required")
	}
	if attachments == nil {
		return nil, fmt.Errorf("attachment provider is required")
	}
	if exceptions == nil {
		return nil, fmt.Errorf("exception sender is required")
	}

	s := &Synthesizer{
		player:       player,
		sender:       sender,
		focusManager: focusManager,
		contexts:     contexts,
		attachments:  attachments,
		exceptions:   exceptions,
		channelName:  focus.DialogChannelName,
		exec:         executor.New(),
		currentState: StateFinished,
		desiredState: StateFinished,
		currentFocus: focus.None,
		tasks:        map[string]*speakTask{},
		baseContext:  context.Background(),
	}
	s.stateChanged = sync.NewCond(&s.mu)

	for _, opt := range opts {
		opt(s)
	}

	s.player.SetCallbacks(PlaybackCallbacks{
		OnPlaybackStarted:  s.onPlaybackStarted,
		OnPlaybackFinished: s.onPlaybackFinished,
		OnPlaybackError:    s.onPlaybackError,
	})

	return s, nil
}

// Close stops the synthesizer's worker. Any arbitration goroutine blocked in
// OnFocusChanged is unblocked first.
func (s *Synthesizer) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.desiredState = s.currentState
		s.stateChanged.Broadcast()
		s.mu.Unlock()

		s.exec.Shutdown()
	})
}

// PreHandle validates a Speak directive and binds its attachment stream
// without starting playback.
func (s *Synthesizer) PreHandle(info directives.Info) {
	s.exec.Submit(func() { s.executePreHandle(info) })
}

// Handle requests foreground focus for the speech channel; playback begins
// asynchronously once focus is granted. Handle returns immediately.
func (s *Synthesizer) Handle(info directives.Info) {
	s.exec.Submit(func() { s.executeHandle(info) })
}

// Cancel abandons a directive. Cancelling anything but the current task is a
// no-op; cancelling the current task releases its channel and discards its
// resources without waiting for the release to complete.
func (s *Synthesizer) Cancel(info directives.Info) {
	s.exec.Submit(func() { s.executeCancel(info) })
}

// HandleImmediately runs the whole lifecycle for an untracked directive: no
// result is reported and no completion event is sent.
func (s *Synthesizer) HandleImmediately(directive directives.Directive) {
	s.exec.Submit(func() {
		info := directives.Info{Directive: directive}
		if s.executePreHandle(info) {
			s.executeHandle(info)
		}
	})
}

// OnFocusChanged implements focus.Observer. It derives the desired playback
// state from the new focus, schedules the transition on the worker, and
// blocks the calling arbitration goroutine until the transition took effect,
// so consecutive arbitration decisions cannot outrun playback.
func (s *Synthesizer) OnFocusChanged(newFocus focus.State) {
	s.mu.Lock()
	s.currentFocus = newFocus
	if newFocus == focus.Foreground {
		s.desiredState = StatePlaying
	} else {
		s.desiredState = StateFinished
	}
	settled := s.currentState == s.desiredState
	s.mu.Unlock()

	if settled {
		return
	}

	if ok := s.exec.Submit(func() { s.executeStateChange() }); !ok {
		return
	}

	s.mu.Lock()
	for s.currentState != s.desiredState {
		s.stateChanged.Wait()
	}
	s.mu.Unlock()
}

// ProvideState pushes the current playback snapshot into the device context.
func (s *Synthesizer) ProvideState(stateRequestToken uint) {
	s.exec.Submit(func() { s.executeProvideState(stateRequestToken) })
}

// OnContextAvailable implements ContextRequester: the context build finished
// and the oldest pending event can go out.
func (s *Synthesizer) OnContextAvailable(jsonContext string) {
	s.exec.Submit(func() { s.executeSendPendingEvent(true) })
}

// OnContextFailure implements ContextRequester. Context failures are logged
// and the pending event is dropped; playback state is unaffected.
func (s *Synthesizer) OnContextFailure(err error) {
	logger.Warn("failed to build context for outgoing event", "error", err)
	s.exec.Submit(func() { s.executeSendPendingEvent(false) })
}

func (s *Synthesizer) onPlaybackStarted() {
	s.exec.Submit(func() { s.executePlaybackStarted() })
}

func (s *Synthesizer) onPlaybackFinished() {
	s.exec.Submit(func() { s.executePlaybackFinished() })
}

func (s *Synthesizer) onPlaybackError(message string) {
	s.exec.Submit(func() { s.executePlaybackError(message) })
}

// executePreHandle validates the directive and installs it as the current
// task. It reports whether handling may proceed.
func (s *Synthesizer) executePreHandle(info directives.Info) bool {
	directive := info.Directive

	if directive.Name != SpeakDirectiveName {
		s.sendExceptionAndReportFailed(info, directives.ErrorTypeUnsupportedOperation,
			fmt.Sprintf("unsupported directive %s.%s", directive.Namespace, directive.Name))
		return false
	}

	payload, err := parseSpeakPayload(directive.Payload)
	if err != nil {
		s.sendExceptionAndReportFailed(info, directives.ErrorTypeUnexpectedInformation, err.Error())
		return false
	}
	if payload.Token == "" {
		s.sendExceptionAndReportFailed(info, directives.ErrorTypeUnexpectedInformation,
			"speak payload is missing a token")
		return false
	}

	contentID, ok := attachmentContentID(payload.URL)
	if !ok {
		s.sendExceptionAndReportFailed(info, directives.ErrorTypeUnsupportedOperation,
			fmt.Sprintf("unplayable speech url %q", payload.URL))
		return false
	}

	if s.currentTask != nil {
		s.sendExceptionAndReportFailed(info, directives.ErrorTypeInternalError,
			"a speak directive is already being handled")
		return false
	}

	source, err := s.attachments.Reader(contentID)
	if err != nil {
		s.sendExceptionAndReportFailed(info, directives.ErrorTypeInternalError,
			fmt.Sprintf("failed to open speech attachment: %v", err))
		return false
	}

	task := &speakTask{
		directive:      directive,
		result:         info.Result,
		token:          payload.Token,
		source:         source,
		sendCompletion: info.Result != nil,
	}
	s.tasks[directive.MessageID] = task
	s.currentTask = task
	return true
}

// executeHandle acquires the speech channel for the pre-handled directive,
// using the directive's message id as the activity id.
func (s *Synthesizer) executeHandle(info directives.Info) {
	messageID := info.Directive.MessageID

	task, ok := s.tasks[messageID]
	if !ok || task != s.currentTask {
		s.sendExceptionAndReportFailed(info, directives.ErrorTypeInternalError,
			fmt.Sprintf("no pre-handled speak directive for message id %q", messageID))
		return
	}

	if ok := s.focusManager.AcquireChannel(s.channelName, s, messageID); !ok {
		_, span := tracer.Start(s.baseContext, "acquire speech channel")
		err := fmt.Errorf("failed to acquire channel %q", s.channelName)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()

		s.resetCurrentTask()
		s.sendExceptionAndReportFailed(info, directives.ErrorTypeInternalError, err.Error())
	}
}

func (s *Synthesizer) executeCancel(info directives.Info) {
	messageID := info.Directive.MessageID

	task, ok := s.tasks[messageID]
	if !ok {
		return
	}
	delete(s.tasks, messageID)

	if task != s.currentTask {
		// Already superseded or finished; just drop the cached resources.
		task.clear()
		return
	}

	// Cleanup is fire-and-forget: the release's completion is not awaited.
	s.focusManager.ReleaseChannel(s.channelName, s)
	s.currentTask.clear()
	s.currentTask = nil
}

// executeStateChange performs one step towards the desired state. It is
// idempotent: when current already matches desired it performs no I/O.
func (s *Synthesizer) executeStateChange() {
	s.mu.Lock()
	desired := s.desiredState
	settled := s.currentState == desired
	s.mu.Unlock()

	if settled {
		return
	}

	switch desired {
	case StatePlaying:
		s.startPlaying()
	case StateFinished:
		s.stopPlaying()
	}
}

func (s *Synthesizer) startPlaying() {
	task := s.currentTask
	if task == nil || task.source == nil {
		s.executePlaybackError("no speech source is bound")
		return
	}

	if err := s.player.SetSource(task.source); err != nil {
		s.executePlaybackError(fmt.Sprintf("failed to set speech source: %v", err))
		return
	}
	if err := s.player.Play(); err != nil {
		// A synchronous start failure follows the same path as an
		// asynchronous playback error.
		s.executePlaybackError(fmt.Sprintf("failed to start playback: %v", err))
	}
}

func (s *Synthesizer) stopPlaying() {
	if err := s.player.Stop(); err != nil {
		s.executePlaybackError(fmt.Sprintf("failed to stop playback: %v", err))
	}
}

func (s *Synthesizer) executePlaybackStarted() {
	s.setCurrentState(StatePlaying)

	task := s.currentTask
	task.reportSuccess()

	s.executeProvideState(0)
	if task != nil {
		s.enqueueEvent(messaging.NewSpeechStartedEvent(task.token))
	}
}

func (s *Synthesizer) executePlaybackFinished() {
	s.setCurrentState(StateFinished)
	s.releaseForegroundFocus()

	task := s.currentTask
	s.executeProvideState(0)
	if task != nil && task.sendCompletion {
		s.enqueueEvent(messaging.NewSpeechFinishedEvent(task.token))
	}

	s.resetCurrentTask()
}

func (s *Synthesizer) executePlaybackError(message string) {
	// Also force the desired state so a focus rendezvous waiting for
	// Playing cannot wait on a transition that will never happen.
	s.mu.Lock()
	s.currentState = StateFinished
	s.desiredState = StateFinished
	s.stateChanged.Broadcast()
	s.mu.Unlock()
	s.notifyStateCallbacks(StateFinished)

	logger.Error("speech playback failed", "error", message)

	s.releaseForegroundFocus()
	s.executeProvideState(0)

	if task := s.currentTask; task != nil {
		task.reportFailure(message)
	}
	s.resetCurrentTask()
}

func (s *Synthesizer) executeProvideState(stateRequestToken uint) {
	report := StateReport{
		OffsetMilliseconds: s.player.Offset().Milliseconds(),
		Activity:           s.CurrentState(),
	}
	if s.currentTask != nil {
		report.Token = s.currentTask.token
	}

	if err := s.contexts.SetState(report, stateRequestToken); err != nil {
		// Reporting failures never escalate into the playback lifecycle.
		logger.Warn("failed to provide playback state", "error", err)
	}
}

// enqueueEvent parks an event and asks the context manager for a context
// build; the event goes out once OnContextAvailable fires.
func (s *Synthesizer) enqueueEvent(event messaging.Event) {
	s.pendingEvents = append(s.pendingEvents, event)
	s.contexts.RequestContext(s)
}

func (s *Synthesizer) executeSendPendingEvent(send bool) {
	if len(s.pendingEvents) == 0 {
		return
	}

	event := s.pendingEvents[0]
	s.pendingEvents = s.pendingEvents[1:]

	if !send {
		return
	}

	if err := s.sender.SendEvent(s.baseContext, event); err != nil {
		logger.Warn("failed to send event",
			"event", event.Header.Name, "token", event.Payload.Token, "error", err)
	}
}

// CurrentState returns the playback state as last confirmed by the media
// player.
func (s *Synthesizer) CurrentState() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentState
}

func (s *Synthesizer) setCurrentState(state PlaybackState) {
	s.mu.Lock()
	changed := s.currentState != state
	s.currentState = state
	s.stateChanged.Broadcast()
	s.mu.Unlock()

	if changed {
		s.notifyStateCallbacks(state)
	}
}

func (s *Synthesizer) notifyStateCallbacks(state PlaybackState) {
	for _, callback := range s.stateCallbacks {
		callback(state)
	}
}

func (s *Synthesizer) releaseForegroundFocus() {
	s.focusManager.ReleaseChannel(s.channelName, s)
}

func (s *Synthesizer) resetCurrentTask() {
	task := s.currentTask
	if task == nil {
		return
	}

	delete(s.tasks, task.directive.MessageID)
	task.clear()
	s.currentTask = nil
}

func (s *Synthesizer) sendExceptionAndReportFailed(
	info directives.Info, errorType directives.ErrorType, message string,
) {
	logger.Error("failed to process speak directive",
		"messageID", info.Directive.MessageID, "errorType", string(errorType), "error", message)

	s.exceptions.SendExceptionEncountered(info.Directive, errorType, message)
	if info.Result != nil {
		info.Result.ReportFailure(message)
	}
}
