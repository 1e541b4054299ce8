package api

import (
	"errors"

	"slotengine/internal/service/scheduling"
	"slotengine/internal/store"
)

// ErrorClass groups failures the way callers need to react to them.
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassInvalid
	ClassUnavailable
	ClassNotFound
)

func Classify(err error) ErrorClass {
	var ve *scheduling.ValidationError
	var ue *scheduling.SlotUnavailableError
	switch {
	case errors.Is(err, ErrBadRequest), errors.As(err, &ve):
		return ClassInvalid
	case errors.As(err, &ue):
		return ClassUnavailable
	case errors.Is(err, store.ErrNotFound):
		return ClassNotFound
	default:
		return ClassInternal
	}
}
