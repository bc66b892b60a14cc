// Package directives defines the contract between the directive-delivery
// subsystem and the capability agents that handle directives. The delivery
// subsystem validates, sequences and dispatches directives; agents consume
// them through the three-phase pre-handle/handle/cancel lifecycle and report
// the outcome through the attached result handle.
package directives

import (
	"io"

	"github.com/google/uuid"
)

// Directive is one instruction delivered to an agent. Payload carries the
// raw JSON payload; its shape is owned by the handling agent.
type Directive struct {
	Namespace       string
	Name            string
	MessageID       string
	DialogRequestID string
	Payload         string
}

// NewMessageID produces a unique message id for locally originated
// directives and events.
func NewMessageID() string {
	return uuid.NewString()
}

// Result reports the outcome of handling a single directive back to the
// delivery subsystem. Exactly one of the two methods is called, once.
type Result interface {
	ReportSuccess()
	ReportFailure(description string)
}

// Info pairs a directive with its result handle for the lifecycle calls.
// Result is nil for directives handled immediately.
type Info struct {
	Directive Directive
	Result    Result
}

// AttachmentProvider resolves a content id referenced inside a directive
// payload to the byte stream it names. The returned reader is owned by the
// caller until closed.
type AttachmentProvider interface {
	Reader(contentID string) (io.ReadCloser, error)
}
