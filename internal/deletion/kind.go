package deletion

// Kind classifies the outcome of a delete request.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidRequest
	KindNotFound
	KindPermissionDenied
	KindTypeMismatch
	KindRefused
	KindExecutionFault
	KindOther
)

var kindNames = map[Kind]string{
	KindNone:             "none",
	KindInvalidRequest:   "invalid_request",
	KindNotFound:         "not_found",
	KindPermissionDenied: "permission_denied",
	KindTypeMismatch:     "type_mismatch",
	KindRefused:          "refused",
	KindExecutionFault:   "execution_fault",
	KindOther:            "other",
}

// String returns the stable identifier used in metrics labels, history rows and API bodies.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "other"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindOther, false
}

// label is the human-readable prefix of failure messages.
func (k Kind) label() string {
	switch k {
	case KindInvalidRequest:
		return "invalid request"
	case KindNotFound:
		return "not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindTypeMismatch:
		return "type mismatch"
	case KindRefused:
		return "refused"
	case KindExecutionFault:
		return "internal execution fault"
	default:
		return "delete failed"
	}
}
