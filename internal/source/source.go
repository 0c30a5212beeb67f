package source

import (
	"context"
	"errors"
	"fmt"

	"drawwatcher/internal/draw"
)

// Client retrieves one candidate "latest draw" record from one origin.
type Client interface {
	ID() string
	Fetch(ctx context.Context) (draw.Record, error)
}

// ErrorKind classifies a fetch failure for diagnostics and fallback.
type ErrorKind string

const (
	ErrorNetwork ErrorKind = "network"
	ErrorAuth    ErrorKind = "auth"
	ErrorParse   ErrorKind = "parse"
)

// FetchError is the recoverable failure taxonomy shared by all variants.
// It drives fallback to the next source, never a hard cycle failure.
type FetchError struct {
	SourceID string
	Kind     ErrorKind
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source %s: %s error: %v", e.SourceID, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func newFetchError(sourceID string, kind ErrorKind, err error) *FetchError {
	return &FetchError{SourceID: sourceID, Kind: kind, Err: err}
}

// KindOf extracts the error kind, defaulting to network for plain errors
// (transport failures surface as raw net/http errors).
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ErrorNetwork
}
