// Package messaging defines the outward event contract: the envelopes a
// client sends to the remote service to report what happened on the device.
// Transports live in sub-packages; this package only models the envelopes.
package messaging

import "github.com/koralvoice/koral-core/core/directives"

// Event namespaces and names used by the speech agent.
const (
	SpeechSynthesizerNamespace = "SpeechSynthesizer"

	SpeechStartedEventName  = "SpeechStarted"
	SpeechFinishedEventName = "SpeechFinished"
)

// Header identifies an event and ties it to a unique message id.
type Header struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	MessageID string `json:"messageId"`
}

// TokenPayload carries the token of the speak request an event refers to.
type TokenPayload struct {
	Token string `json:"token"`
}

// Event is the envelope sent to the remote service.
type Event struct {
	Header  Header       `json:"header"`
	Payload TokenPayload `json:"payload"`
}

func newSpeechEvent(name, token string) Event {
	return Event{
		Header: Header{
			Namespace: SpeechSynthesizerNamespace,
			Name:      name,
			MessageID: directives.NewMessageID(),
		},
		Payload: TokenPayload{Token: token},
	}
}

// NewSpeechStartedEvent creates the event reporting that playback of the
// speech identified by token began.
func NewSpeechStartedEvent(token string) Event {
	return newSpeechEvent(SpeechStartedEventName, token)
}

// NewSpeechFinishedEvent creates the event reporting that playback of the
// speech identified by token completed normally.
func NewSpeechFinishedEvent(token string) Event {
	return newSpeechEvent(SpeechFinishedEventName, token)
}
