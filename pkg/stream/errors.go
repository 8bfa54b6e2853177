package stream

import "errors"

// ErrNotConnected is returned by Send while the transport is not open.
var ErrNotConnected = errors.New("stream: not connected")
