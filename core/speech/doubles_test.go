package speech

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/koralvoice/koral-core/core/directives"
	"github.com/koralvoice/koral-core/core/focus"
	"github.com/koralvoice/koral-core/core/messaging"
)

// testPlayer is a scripted media player: Play reports started immediately on
// its own goroutine, finishing is triggered by the test (or by Stop), the
// way the integration test player of the original service behaves.
type testPlayer struct {
	mu        sync.Mutex
	callbacks PlaybackCallbacks

	source io.Reader
	offset time.Duration

	playing  bool
	finished bool

	playErr error

	playCalls int
	stopCalls int
}

func (p *testPlayer) SetCallbacks(callbacks PlaybackCallbacks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = callbacks
}

func (p *testPlayer) SetSource(source io.Reader) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
	return nil
}

func (p *testPlayer) Play() error {
	p.mu.Lock()
	p.playCalls++
	if p.playErr != nil {
		err := p.playErr
		p.mu.Unlock()
		return err
	}
	if p.source == nil {
		p.mu.Unlock()
		return fmt.Errorf("no source bound")
	}
	p.playing = true
	p.finished = false
	callback := p.callbacks.OnPlaybackStarted
	p.mu.Unlock()

	go callback()
	return nil
}

func (p *testPlayer) Stop() error {
	p.mu.Lock()
	p.stopCalls++
	if !p.playing {
		p.mu.Unlock()
		return fmt.Errorf("not playing")
	}
	p.playing = false
	p.finished = true
	callback := p.callbacks.OnPlaybackFinished
	p.mu.Unlock()

	callback()
	return nil
}

// emitFinished simulates the source draining naturally.
func (p *testPlayer) emitFinished() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.finished = true
	callback := p.callbacks.OnPlaybackFinished
	p.mu.Unlock()

	callback()
}

// emitError simulates an asynchronous playback failure.
func (p *testPlayer) emitError(message string) {
	p.mu.Lock()
	p.playing = false
	callback := p.callbacks.OnPlaybackError
	p.mu.Unlock()

	callback(message)
}

func (p *testPlayer) Offset() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

type testResult struct {
	successes chan struct{}
	failures  chan string
}

func newTestResult() *testResult {
	return &testResult{
		successes: make(chan struct{}, 4),
		failures:  make(chan string, 4),
	}
}

func (r *testResult) ReportSuccess() { r.successes <- struct{}{} }

func (r *testResult) ReportFailure(description string) { r.failures <- description }

type exceptionRecord struct {
	directive directives.Directive
	errorType directives.ErrorType
	message   string
}

type testExceptionSender struct {
	exceptions chan exceptionRecord
}

func newTestExceptionSender() *testExceptionSender {
	return &testExceptionSender{exceptions: make(chan exceptionRecord, 4)}
}

func (s *testExceptionSender) SendExceptionEncountered(
	directive directives.Directive, errorType directives.ErrorType, message string,
) {
	s.exceptions <- exceptionRecord{directive: directive, errorType: errorType, message: message}
}

// trackedReader wraps an attachment stream to observe Close.
type trackedReader struct {
	io.Reader
	closed chan struct{}
	once   sync.Once
}

func (r *trackedReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

type testAttachments struct {
	mu      sync.Mutex
	streams map[string]string
	readers map[string]*trackedReader
}

func newTestAttachments() *testAttachments {
	return &testAttachments{
		streams: map[string]string{},
		readers: map[string]*trackedReader{},
	}
}

func (a *testAttachments) add(contentID, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.streams[contentID] = content
}

func (a *testAttachments) Reader(contentID string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	content, ok := a.streams[contentID]
	if !ok {
		return nil, fmt.Errorf("no attachment %q", contentID)
	}

	reader := &trackedReader{Reader: strings.NewReader(content), closed: make(chan struct{})}
	a.readers[contentID] = reader
	return reader, nil
}

func (a *testAttachments) reader(contentID string) *trackedReader {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readers[contentID]
}

type testSender struct {
	events chan messaging.Event
}

func newTestSender() *testSender {
	return &testSender{events: make(chan messaging.Event, 8)}
}

func (s *testSender) SendEvent(ctx context.Context, event messaging.Event) error {
	s.events <- event
	return nil
}

// testContextManager records state reports and answers context requests
// asynchronously, either successfully or with a failure.
type testContextManager struct {
	states      chan StateReport
	failContext bool
}

func newTestContextManager() *testContextManager {
	return &testContextManager{states: make(chan StateReport, 8)}
}

func (c *testContextManager) SetState(report StateReport, stateRequestToken uint) error {
	c.states <- report
	return nil
}

func (c *testContextManager) RequestContext(requester ContextRequester) {
	go func() {
		if c.failContext {
			requester.OnContextFailure(fmt.Errorf("context build failed"))
			return
		}
		requester.OnContextAvailable(`{}`)
	}()
}

// acquireRecordingFocusManager fakes the arbitration engine for unit cases
// that need to script focus outcomes.
type acquireRecordingFocusManager struct {
	mu       sync.Mutex
	acquired []string
	released []string
	denied   bool
}

func (m *acquireRecordingFocusManager) AcquireChannel(
	channelName string, observer focus.Observer, activityID string,
) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.denied {
		return false
	}
	m.acquired = append(m.acquired, activityID)
	return true
}

func (m *acquireRecordingFocusManager) ReleaseChannel(
	channelName string, observer focus.Observer,
) <-chan bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, channelName)
	result := make(chan bool, 1)
	result <- true
	return result
}

func (m *acquireRecordingFocusManager) releaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.released)
}
