package config

import "errors"

// ErrInvalidConfig wraps every validation failure raised by Config.Validate.
var ErrInvalidConfig = errors.New("invalid configuration")
