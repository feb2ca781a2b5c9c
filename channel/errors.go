package channel

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyConnected  = errors.New("channel already connected")
	ErrNotConnected      = errors.New("channel not connected")
	ErrSideChannelClosed = errors.New("side channel not open")

	// Microphone implementations wrap these so that Initialize can tell the
	// failure kinds apart.
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrDeviceNotFound   = errors.New("no microphone found")
	ErrDeviceBusy       = errors.New("microphone busy")
)

type MediaAccessKind int

const (
	MediaAccessUnknown MediaAccessKind = iota
	MediaAccessPermissionDenied
	MediaAccessDeviceNotFound
	MediaAccessDeviceBusy
)

func (k MediaAccessKind) String() string {
	switch k {
	case MediaAccessPermissionDenied:
		return "permission_denied"
	case MediaAccessDeviceNotFound:
		return "device_not_found"
	case MediaAccessDeviceBusy:
		return "device_busy"
	default:
		return "unknown"
	}
}

// MediaAccessError is returned by Initialize when the microphone could not be
// opened. Error returns a message meant for the user.
type MediaAccessError struct {
	Kind MediaAccessKind
	Err  error
}

func (e *MediaAccessError) Error() string {
	switch e.Kind {
	case MediaAccessPermissionDenied:
		return "Microphone permission denied. Please allow microphone access and try again."
	case MediaAccessDeviceNotFound:
		return "No microphone found. Please connect a microphone and try again."
	case MediaAccessDeviceBusy:
		return "Microphone is already in use by another application. Please close other apps using the microphone and try again."
	default:
		return fmt.Sprintf("Microphone error: %v", e.Err)
	}
}

func (e *MediaAccessError) Unwrap() error { return e.Err }

func classifyMediaError(err error) *MediaAccessError {
	var mErr *MediaAccessError
	if errors.As(err, &mErr) {
		return mErr
	}

	kind := MediaAccessUnknown
	switch {
	case errors.Is(err, ErrPermissionDenied):
		kind = MediaAccessPermissionDenied
	case errors.Is(err, ErrDeviceNotFound):
		kind = MediaAccessDeviceNotFound
	case errors.Is(err, ErrDeviceBusy):
		kind = MediaAccessDeviceBusy
	}
	return &MediaAccessError{Kind: kind, Err: err}
}

// SendError describes an outbound event that was not delivered.
type SendError struct {
	EventType string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s: %v", e.EventType, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
