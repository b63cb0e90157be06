package sol

import "errors"

var (
	// ErrTransport covers network errors, timeouts, non-2xx responses and
	// bodies that are not JSON.
	ErrTransport = errors.New("sol transport failure")

	// ErrMalformedPayload means the body decoded but lacks a required field:
	// "devices" on list, "smarthome" on mutation, or a device "id"/"elements".
	ErrMalformedPayload = errors.New("sol malformed payload")
)
