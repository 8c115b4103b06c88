package resilience

import "errors"

// ErrCircuitOpen means the protected dependency is considered down and the
// call was rejected without being attempted.
var ErrCircuitOpen = errors.New("circuit breaker is open")
