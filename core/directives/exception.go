package directives

// ErrorType classifies why a directive could not be processed.
type ErrorType string

const (
	// ErrorTypeUnexpectedInformation marks directives whose payload was
	// malformed or missing required properties.
	ErrorTypeUnexpectedInformation ErrorType = "UNEXPECTED_INFORMATION_RECEIVED"
	// ErrorTypeUnsupportedOperation marks directives naming an operation the
	// agent does not implement.
	ErrorTypeUnsupportedOperation ErrorType = "UNSUPPORTED_OPERATION"
	// ErrorTypeInternalError marks directives that failed for any other
	// reason local to the client.
	ErrorTypeInternalError ErrorType = "INTERNAL_ERROR"
)

// ExceptionSender notifies the remote service that a delivered directive
// could not be processed. Sending is best effort; agents continue their own
// cleanup regardless.
type ExceptionSender interface {
	SendExceptionEncountered(directive Directive, errorType ErrorType, message string)
}
