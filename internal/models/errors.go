package models

import "errors"

// Failure kinds of one submission. Callers match them with errors.Is.
var (
	ErrMissingPayload = errors.New("no file uploaded")
	ErrStorageWrite   = errors.New("storage write failed")
	ErrPersistence    = errors.New("persistence failed")
	ErrDelivery       = errors.New("delivery failed")
)
