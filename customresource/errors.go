package customresource

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies what failed; it is the first thing the stack operator reads
// in the FAILED message.
type Kind string

const (
	KindConfig     Kind = "config"
	KindStorage    Kind = "storage"
	KindTimeseries Kind = "timeseries"
	KindDownload   Kind = "download"
	KindScratch    Kind = "scratch"
	KindCallback   Kind = "callback"
	KindInternal   Kind = "internal"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error during %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError returns nil when err is nil, so it can wrap a call result directly.
func NewError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// FailureMessage renders err for the callback payload.
func FailureMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return (&Error{Kind: KindInternal, Err: err}).Error()
}
