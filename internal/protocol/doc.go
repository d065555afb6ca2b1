// Package protocol owns the activity-tagged request payload.
//
// Ownership boundary:
// - activity tag parsing and canonical form
// - payload encode/decode around the fixed delimiter
//
// Transport framing lives in protocol/frame; this package never sees frame
// headers, only the payload bytes a request carries.
package protocol
