package capture

import (
	"errors"
	"net"
	"os"
)

// ErrorCode classifies a capture failure.
type ErrorCode string

const (
	NoSpeech     ErrorCode = "no-speech"
	AudioCapture ErrorCode = "audio-capture"
	NotAllowed   ErrorCode = "not-allowed"
	Network      ErrorCode = "network"
	Aborted      ErrorCode = "aborted"
	ServiceError ErrorCode = "service-not-allowed"
)

var (
	ErrNoSpeech       = errors.New("no speech detected")
	ErrAlreadyStarted = errors.New("recognition has already started")
)

// Error pairs a failure with its classification.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the user-facing text for the code.
func (c ErrorCode) Message() string {
	switch c {
	case NoSpeech:
		return "No speech detected. Please try speaking again."
	case AudioCapture:
		return "Microphone not found or not accessible. Please check your device."
	case NotAllowed:
		return "Microphone access denied. Please allow microphone permissions."
	case Network:
		return "Network error with speech recognition. Please check your connection."
	default:
		return "Speech recognition error: " + string(c)
	}
}

// classifyRecord maps a recorder failure to a code.
func classifyRecord(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrNoSpeech):
		return NoSpeech
	case errors.Is(err, os.ErrPermission):
		return NotAllowed
	default:
		return AudioCapture
	}
}

// classifyTranscribe maps a transcriber failure to a code.
func classifyTranscribe(err error) ErrorCode {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrNoSpeech):
		return NoSpeech
	case errors.As(err, &netErr):
		return Network
	default:
		return ServiceError
	}
}
