package ws

import "errors"

var (
	// ErrDuplicateConnection is returned when registering an id twice.
	ErrDuplicateConnection = errors.New("connection id already registered")

	// ErrConnectionNotFound is returned for operations on unknown ids.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrSendBufferFull signals a slow consumer; the update is dropped,
	// never queued.
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrConnectionClosed signals a send attempt after close.
	ErrConnectionClosed = errors.New("connection closed")
)
