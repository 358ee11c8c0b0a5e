package utils

import "errors"

// Error kinds surfaced to the API boundary. Handlers map these onto HTTP
// status codes; everything else is treated as unexpected (500).
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("record not found")
	ErrInvalidState  = errors.New("invalid state transition")
	ErrConfiguration = errors.New("configuration error")
	ErrGateway       = errors.New("payment gateway error")
	ErrNoStrategy    = errors.New("no payment strategy for method")
	ErrUnauthorized  = errors.New("unauthorized")
)

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
