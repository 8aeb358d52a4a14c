package moderation

import "strings"

// ErrorClass buckets a failed moderation call by what the failure implies
// for the fallback path.
type ErrorClass int

const (
	// ErrorClassTransient indicates a failure the legacy path may still
	// succeed on (network, not configured, rate limit, server error).
	ErrorClassTransient ErrorClass = iota
	// ErrorClassPermission indicates the acting account lacks moderator
	// rights; the legacy path would fail the same way, so no fallback.
	ErrorClassPermission
	// ErrorClassNotFound indicates the target user/channel/message does not
	// exist; retrying through another path cannot help.
	ErrorClassNotFound
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassPermission:
		return "permission"
	case ErrorClassNotFound:
		return "not_found"
	default:
		return "transient"
	}
}

// ClassifyActionError classifies a moderation API failure by inspecting the
// error text for HTTP status substrings, the way the Helix client reports
// them (status line plus body).
//
// Permission (terminal, no fallback):
// - 401/403, "unauthorized", "forbidden", missing-scope messages
//
// Not found (terminal, no fallback):
// - 404, "not found", "does not exist"
//
// Everything else is transient: network failures, 429/5xx, and local
// configuration problems all leave the legacy path worth one attempt.
func ClassifyActionError(err error) ErrorClass {
	if err == nil {
		return ErrorClassTransient
	}
	lower := strings.ToLower(err.Error())

	if strings.Contains(lower, "401") ||
		strings.Contains(lower, "403") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "missing scope") {
		return ErrorClassPermission
	}

	if strings.Contains(lower, "404") ||
		strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist") {
		return ErrorClassNotFound
	}

	return ErrorClassTransient
}

// IsPermissionError reports whether err is terminal for lack of rights.
func IsPermissionError(err error) bool {
	return err != nil && ClassifyActionError(err) == ErrorClassPermission
}

// IsNotFoundError reports whether err names a missing target.
func IsNotFoundError(err error) bool {
	return err != nil && ClassifyActionError(err) == ErrorClassNotFound
}
