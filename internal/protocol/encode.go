package protocol

// Delimiter separates the activity tag from the payload. It is the UTF-8
// encoding of U+EDFD, a private-use code point that ordinary text does not
// contain. The codec never escapes it.
const Delimiter = "\uedfd"

var delimiterBytes = []byte(Delimiter)

// Encode returns the activity's canonical tag, the delimiter and the payload
// bytes, with no terminator.
func Encode(activity Activity, payload string) ([]byte, error) {
	if !activity.Valid() {
		return nil, ErrUnknownActivity
	}
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	tag := activity.String()
	out := make([]byte, 0, len(tag)+len(delimiterBytes)+len(payload))
	out = append(out, tag...)
	out = append(out, delimiterBytes...)
	out = append(out, payload...)
	return out, nil
}
