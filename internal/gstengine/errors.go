package gstengine

import "strings"

// ErrorCategory is a coarse classification of engine errors.
type ErrorCategory int

const (
	// ErrCategoryNetwork covers connection, timeout and name resolution failures.
	ErrCategoryNetwork ErrorCategory = iota
	// ErrCategoryCodec covers negotiation and decoding failures.
	ErrCategoryCodec
	// ErrCategoryAuth covers rejected credentials.
	ErrCategoryAuth
	// ErrCategoryPlugin covers elements missing from the installation.
	ErrCategoryPlugin
	// ErrCategoryUnknown is everything else.
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	case ErrCategoryPlugin:
		return "plugin"
	default:
		return "unknown"
	}
}

// Keyword tables are checked in order; the first match wins.
var classification = []struct {
	category ErrorCategory
	keywords []string
}{
	{ErrCategoryAuth, []string{"unauthorized", "401", "403", "forbidden", "authentication", "credentials", "password"}},
	{ErrCategoryPlugin, []string{"no element", "missing plugin", "no such element", "could not find element"}},
	{ErrCategoryCodec, []string{"not negotiated", "negotiation", "caps", "decode", "decoder", "opus", "codec", "format"}},
	{ErrCategoryNetwork, []string{"could not connect", "failed to connect", "connection", "timeout", "timed out", "unreachable", "resolve", "socket", "network", "not found", "404"}},
}

// Classify categorizes an engine error from its message and debug text.
func Classify(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)
	for _, c := range classification {
		for _, kw := range c.keywords {
			if strings.Contains(combined, kw) {
				return c.category
			}
		}
	}
	return ErrCategoryUnknown
}
