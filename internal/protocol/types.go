package protocol

import "strings"

// Activity is the request kind carried in front of the delimiter.
type Activity uint8

const (
	ActivityURL Activity = iota + 1
	ActivityText
)

// Activities lists every valid activity in wire order.
func Activities() []Activity {
	return []Activity{ActivityURL, ActivityText}
}

// String returns the canonical uppercase wire form.
func (a Activity) String() string {
	switch a {
	case ActivityURL:
		return "URL"
	case ActivityText:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

func (a Activity) Valid() bool {
	return a == ActivityURL || a == ActivityText
}

// ParseActivity matches raw case-insensitively against the known activities.
// Surrounding whitespace is significant.
func ParseActivity(raw string) (Activity, error) {
	for _, a := range Activities() {
		if strings.EqualFold(raw, a.String()) {
			return a, nil
		}
	}
	return 0, ErrUnknownActivity
}

// Message is one decoded request payload.
type Message struct {
	Activity Activity
	Payload  string
}
