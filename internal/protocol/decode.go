package protocol

import "bytes"

// Decode splits msg at the first delimiter occurrence. The left side must
// name an activity, the right side is taken verbatim as the payload. A
// payload that itself contains the delimiter keeps it: the split is always
// at the first occurrence.
func Decode(msg []byte) (Message, error) {
	idx := bytes.Index(msg, delimiterBytes)
	if idx < 0 {
		return Message{}, ErrDelimiterMissing
	}
	if idx == 0 {
		return Message{}, ErrEmptyActivity
	}
	end := idx + len(delimiterBytes)
	if end == len(msg) {
		return Message{}, ErrEmptyPayload
	}

	activity, err := ParseActivity(string(msg[:idx]))
	if err != nil {
		return Message{}, err
	}
	return Message{Activity: activity, Payload: string(msg[end:])}, nil
}
