package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrInputValidation is returned for malformed or missing inputs.
	ErrInputValidation = errors.New("invalid input")
	// ErrKeyLength is returned when the TIK is not TIKSize bytes.
	ErrKeyLength = errors.New("invalid transport integrity key length")
	// ErrIO is returned when reading an input or writing the output fails.
	ErrIO = errors.New("i/o error")
	// ErrEncoding is returned for undecodable base64 text.
	ErrEncoding = errors.New("encoding error")
	// ErrImageRead is returned when the launch digest must be derived but no
	// firmware image was supplied.
	ErrImageRead = fmt.Errorf("%w: firmware image required", ErrInputValidation)
)

// InputError names the input that caused a failure.
type InputError struct {
	Input string
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %v", e.Input, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func inputError(input string, err error) error {
	return &InputError{Input: input, Err: err}
}
