package broadcast

import "errors"

var (
	// ErrConnectionClosed is returned by Send once the peer has gone away.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendFailed wraps a transport write error.
	ErrSendFailed = errors.New("send failed")

	ErrServerClosed = errors.New("broadcast server closed")
)
