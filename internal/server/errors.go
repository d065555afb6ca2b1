package server

import "errors"

var (
	ErrPollFailed    = errors.New("server: poll failed")
	ErrReceiveFailed = errors.New("server: receive failed")
	ErrSendFailed    = errors.New("server: acknowledgement failed")
	ErrForwardFailed = errors.New("server: forward failed")
	ErrLoopConfig    = errors.New("server: loop needs a reply socket and a stop endpoint")
)
