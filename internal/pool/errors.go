package pool

import "errors"

// ErrDead names the condition of a pooled connection whose peer closed
// it or whose socket reports an error. No function in this package
// returns it: the liveness probe reports a bool, and Return closes such
// connections without reporting an error.
var ErrDead = errors.New("pool: connection dead")

// ErrDialFailed wraps the underlying net.Dial error on a pool miss.
var ErrDialFailed = errors.New("pool: dial failed")
