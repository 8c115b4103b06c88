package matching

import "errors"

var (
	ErrInvalidFill    = errors.New("invalid fill")
	ErrOrderClosed    = errors.New("order already closed")
	ErrOrderNotInBook = errors.New("order not in book")
	ErrOrderRejected  = errors.New("order not accepted by book")
	ErrUnknownPair    = errors.New("unknown trading pair")
)
