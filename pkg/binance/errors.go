package binance

import (
	"errors"
	"fmt"
)

// codeInvalidTimestamp is Binance's rejection of a signed request whose
// timestamp falls outside the server's recvWindow.
const codeInvalidTimestamp = -1021

// APIError is a structured error decoded from the exchange's response body.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: API error %d (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

// IsClockSkew reports whether err is the exchange's timestamp-outside-recvWindow
// rejection, the signal that the local clock offset needs a resync.
func IsClockSkew(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == codeInvalidTimestamp
}

// Validation errors are raised locally before any network call is made.
var (
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrInvalidSide        = errors.New("invalid order side")
	ErrInvalidOrderType   = errors.New("invalid order type")
	ErrQuantityOutOfRange = errors.New("quantity out of range")
	ErrPriceOutOfRange    = errors.New("price out of range")
)

// IsValidationError reports whether err is a local pre-flight rejection
// rather than a transport or exchange failure.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrUnknownSymbol,
		ErrInvalidSide,
		ErrInvalidOrderType,
		ErrQuantityOutOfRange,
		ErrPriceOutOfRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
