package flash

import (
	"errors"
	"fmt"
)

// Classes of a rejected image, matched with errors.Is.
var (
	// ErrMalformed means the bytes are not a flash image document.
	ErrMalformed = errors.New("malformed flash image")
	// ErrInvalid means the document decoded but a field breaks a device rule.
	ErrInvalid = errors.New("invalid flash image")

	errMissing = errors.New("missing")
)

// ImageError locates a rejected image. Field is set for ErrInvalid.
type ImageError struct {
	Class error
	Path  string
	Field string
	Err   error
}

func malformed(path string, err error) *ImageError {
	return &ImageError{Class: ErrMalformed, Path: path, Err: err}
}

func invalid(path, field string, err error) *ImageError {
	return &ImageError{Class: ErrInvalid, Path: path, Field: field, Err: err}
}

func (e *ImageError) Error() string {
	msg := e.Class.Error()
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %v", msg, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *ImageError) Unwrap() []error {
	return []error{e.Class, e.Err}
}
