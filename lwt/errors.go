package lwt

import "github.com/pkg/errors"

// Error is a numeric-coded API error, matching the C original's
// int-return-code convention while staying a normal Go error so callers
// can use errors.Is against the sentinels below.
type Error int

const (
	ErrInvalidTarget Error = iota + 1
	ErrNotJoinable
	ErrSelfSend
	ErrNoReceiver
	ErrDirectionConflict
	ErrGroupBusy
	ErrAllocFail
)

func (e Error) Error() string {
	switch e {
	case ErrInvalidTarget:
		return "lwt: invalid target fiber"
	case ErrNotJoinable:
		return "lwt: target is not joinable"
	case ErrSelfSend:
		return "lwt: cannot send to self"
	case ErrNoReceiver:
		return "lwt: channel has no receiver"
	case ErrDirectionConflict:
		return "lwt: channel already registered for this direction"
	case ErrGroupBusy:
		return "lwt: group has outstanding channels or events"
	case ErrAllocFail:
		return "lwt: worker allocation failed"
	default:
		return "lwt: unknown error"
	}
}

// wrap attaches additional context to an Error while keeping it matchable
// via errors.Is / errors.As.
func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

func assert(cond bool, msg string) {
	if !cond {
		panic("lwt: assertion failed: " + msg)
	}
}
