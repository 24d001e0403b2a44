package domain

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure so callers can map it to a user-visible code.
type Kind string

const (
	KindExtraction    Kind = "EXTRACTION_ERROR"
	KindIngestion     Kind = "INGESTION_ERROR"
	KindIndexBuild    Kind = "INDEX_BUILD_ERROR"
	KindIndexNotFound Kind = "INDEX_NOT_FOUND"
	KindEmbedding     Kind = "EMBEDDING_ERROR"
	KindRetrieval     Kind = "RETRIEVAL_ERROR"
	KindCompletion    Kind = "COMPLETION_ERROR"
	KindNotReady      Kind = "NOT_READY"
	KindReset         Kind = "RESET_ERROR"
	KindInvalid       Kind = "INVALID_ARGUMENT"
	KindInternal      Kind = "INTERNAL_ERROR"
)

// Error is a categorized failure. Op names the operation that failed and
// Err holds the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, kindMessage(e.Kind))
	default:
		return kindMessage(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same kind, so that
// errors.Is(err, ErrNotReady) works through any wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrExtraction    = &Error{Kind: KindExtraction}
	ErrIngestion     = &Error{Kind: KindIngestion}
	ErrIndexBuild    = &Error{Kind: KindIndexBuild}
	ErrIndexNotFound = &Error{Kind: KindIndexNotFound}
	ErrEmbedding     = &Error{Kind: KindEmbedding}
	ErrRetrieval     = &Error{Kind: KindRetrieval}
	ErrCompletion    = &Error{Kind: KindCompletion}
	ErrNotReady      = &Error{Kind: KindNotReady}
	ErrReset         = &Error{Kind: KindReset}
	ErrInvalid       = &Error{Kind: KindInvalid}
)

// E builds a categorized error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a categorized error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost categorized error in err's chain,
// or KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func kindMessage(k Kind) string {
	switch k {
	case KindExtraction:
		return "text extraction failed"
	case KindIngestion:
		return "ingestion failed"
	case KindIndexBuild:
		return "index build failed"
	case KindIndexNotFound:
		return "index not found"
	case KindEmbedding:
		return "embedding failed"
	case KindRetrieval:
		return "retrieval failed"
	case KindCompletion:
		return "completion failed"
	case KindNotReady:
		return "no documents processed yet"
	case KindReset:
		return "reset failed"
	case KindInvalid:
		return "invalid argument"
	default:
		return "internal error"
	}
}
