package meme

import (
	"errors"
	"fmt"
)

// Publish failure kinds. The first three are caused by the client and have no
// side effects.
var (
	ErrMissingFile          = errors.New("missing file")
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrInvalidMediaFormat   = errors.New("invalid media format")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrMetadataCommitFailed = errors.New("metadata commit failed")
	ErrPublisherClosed      = errors.New("publisher closed")
)

// ErrNotFound is returned when a meme does not exist.
var ErrNotFound = errors.New("meme not found")

// Stage is a state of the publish pipeline.
type Stage string

const (
	StageReceived   Stage = "received"
	StageValidated  Stage = "validated"
	StageClassified Stage = "classified"
	StageEncoded    Stage = "encoded"
	StageUploaded   Stage = "uploaded"
	StageCommitted  Stage = "committed"
	StageRejected   Stage = "rejected"
	StageOrphaned   Stage = "orphaned"
)

// PublishError reports where and why a publish attempt stopped.
// errors.Is matches Kind; Unwrap yields the underlying cause.
type PublishError struct {
	Kind  error
	Stage Stage  // last stage reached before the failure
	Key   string // object key, once generated
	Err   error

	// MediaType is the sniffed MIME type, once the payload was classified.
	MediaType string
}

func (e *PublishError) Error() string {
	msg := fmt.Sprintf("publish failed after %s: %v", e.Stage, e.Kind)
	if e.Key != "" {
		msg += fmt.Sprintf(" (key %s)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PublishError) Is(target error) bool { return target == e.Kind }

func (e *PublishError) Unwrap() error { return e.Err }

// Rejected reports whether the failure was the client's fault.
func (e *PublishError) Rejected() bool {
	return errors.Is(e.Kind, ErrMissingFile) ||
		errors.Is(e.Kind, ErrPayloadTooLarge) ||
		errors.Is(e.Kind, ErrInvalidMediaFormat)
}

// Terminal returns the terminal state this failure leaves the pipeline in.
func (e *PublishError) Terminal() Stage {
	switch {
	case e.Rejected():
		return StageRejected
	case errors.Is(e.Kind, ErrMetadataCommitFailed):
		return StageOrphaned
	default:
		return e.Stage
	}
}
