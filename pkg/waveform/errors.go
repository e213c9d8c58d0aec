package waveform

import (
	"errors"
	"fmt"
)

var ErrAudioDecode = errors.New("unable to decode audio")

// DecodeError is returned by Extract for unreadable sources, sources without
// an audio track and decoder failures.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unable to decode audio of '%s': %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrAudioDecode
}
