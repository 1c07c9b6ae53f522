// Package errors provides machine-readable error codes shared across layers.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified internal failure.
	CodeUnknown Code = "UNKNOWN"

	// CodeValidation indicates bad or missing arguments; never retried.
	CodeValidation Code = "VALIDATION"

	// CodeNotFound indicates an unresolved item, lot, or location reference.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInsufficientQuantity indicates a removal exceeding available stock.
	CodeInsufficientQuantity Code = "INSUFFICIENT_QUANTITY"

	// CodeTransient indicates an oracle, embedding, or store transport failure.
	CodeTransient Code = "TRANSIENT"

	// CodeUnsupportedOperation indicates a tool name with no registered handler.
	CodeUnsupportedOperation Code = "UNSUPPORTED_OPERATION"
)

// Retryable reports whether a failing external call carrying this code may be
// retried once within the same turn. Only transport failures qualify.
func (c Code) Retryable() bool {
	return c == CodeTransient
}
