package memory

import "errors"

var errRemainingOutOfRange = errors.New("credit batch remaining out of range")
