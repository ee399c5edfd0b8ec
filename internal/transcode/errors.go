package transcode

import (
	"errors"
	"fmt"
)

// Kind classifies a stage failure.
type Kind string

const (
	KindDownload Kind = "download"
	KindProbe    Kind = "probe"
	KindEncode   Kind = "encode"
	KindPublish  Kind = "publish"
)

var (
	// ErrTimeout is returned when a job exceeds its overall time limit.
	ErrTimeout = errors.New("transcode job timed out")
	// ErrNotFoundReference is returned when the job's source file or asset
	// row no longer exists.
	ErrNotFoundReference = errors.New("referenced record not found")
)

// Error is a failure in one pipeline stage. Profile is set for encode
// failures.
type Error struct {
	Kind    Kind
	Profile string
	Err     error
}

func (e *Error) Error() string {
	if e.Profile != "" {
		return fmt.Sprintf("%s %s failed: %v", e.Kind, e.Profile, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a job that failed with err may run again.
// Timeouts and missing references are final; stage failures and unclassified
// errors such as database hiccups are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrNotFoundReference) {
		return false
	}
	return true
}
