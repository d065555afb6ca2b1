package protocol

import (
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("protocol: malformed message")

var (
	ErrDelimiterMissing = fmt.Errorf("%w: delimiter missing", ErrMalformed)
	ErrEmptyActivity    = fmt.Errorf("%w: empty activity", ErrMalformed)
	ErrEmptyPayload     = fmt.Errorf("%w: empty payload", ErrMalformed)
	ErrUnknownActivity  = fmt.Errorf("%w: unknown activity", ErrMalformed)
)
