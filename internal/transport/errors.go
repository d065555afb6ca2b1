package transport

import (
	"errors"

	"github.com/danmuck/linkollector/internal/poll"
)

var (
	ErrInvalidEndpoint = errors.New("transport: invalid endpoint")
	ErrState           = errors.New("transport: operation not valid in socket state")
	ErrClosed          = errors.New("transport: socket closed")
	ErrPeerGone        = errors.New("transport: peer disconnected")
	ErrUnexpectedFrame = errors.New("transport: unexpected frame")
	ErrWouldBlock      = poll.ErrWouldBlock
)
