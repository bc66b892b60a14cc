package speech

import (
	"io"

	"github.com/koralvoice/koral-core/core/directives"
)

// speakTask carries everything bound to one Speak directive while it is being
// handled: the token reported outward, the exclusively owned audio source,
// and the result handle of the delivering subsystem. Touched only on the
// synthesizer's worker.
type speakTask struct {
	directive directives.Directive
	result    directives.Result

	token  string
	source io.ReadCloser

	// sendCompletion is set for tracked directives; it gates only the
	// finished event, the started event is always sent.
	sendCompletion bool
}

// clear releases the task's resources. Safe to call more than once.
func (t *speakTask) clear() {
	if t == nil || t.source == nil {
		return
	}

	if err := t.source.Close(); err != nil {
		logger.Warn("failed to close speech source", "token", t.token, "error", err)
	}
	t.source = nil
}

func (t *speakTask) reportFailure(description string) {
	if t != nil && t.result != nil {
		t.result.ReportFailure(description)
	}
}

func (t *speakTask) reportSuccess() {
	if t != nil && t.result != nil {
		t.result.ReportSuccess()
	}
}
