package datastore

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies an upstream failure.
type Kind int

const (
	KindUpstream Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindGone
	KindInvalid
	KindConflict
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindGone:
		return "gone"
	case KindInvalid:
		return "invalid"
	case KindConflict:
		return "conflict"
	case KindTransport:
		return "transport"
	default:
		return "upstream"
	}
}

const (
	CodeTransport = "transport_error"
	CodeTimeout   = "timeout"
)

// Error is a failure reported by the external data store.
type Error struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Kind resolves structured codes first: PostgREST PTnnn statuses, then SQLSTATE,
// then the HTTP status. Plain exception messages are matched last.
func (e *Error) Kind() Kind {
	if e == nil {
		return KindUpstream
	}
	code := strings.ToUpper(strings.TrimSpace(e.Code))
	if len(code) == 5 && strings.HasPrefix(code, "PT") {
		if status, err := strconv.Atoi(code[2:]); err == nil {
			if kind, ok := kindForStatus(status); ok {
				return kind
			}
		}
	}
	switch code {
	case "42501":
		return KindForbidden
	case "28000", "28P01", "PGRST301", "PGRST302", "PGRST303":
		return KindUnauthenticated
	case "P0002", "PGRST116":
		return KindNotFound
	case "23505":
		return KindConflict
	case "22023", "22P02", "23502", "23514":
		return KindInvalid
	case strings.ToUpper(CodeTransport), strings.ToUpper(CodeTimeout):
		return KindTransport
	}
	if kind, ok := kindForStatus(e.Status); ok {
		return kind
	}
	return kindFromMessage(e.Message)
}

func kindForStatus(status int) (Kind, bool) {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthenticated, true
	case http.StatusForbidden:
		return KindForbidden, true
	case http.StatusNotFound:
		return KindNotFound, true
	case http.StatusConflict:
		return KindConflict, true
	case http.StatusGone:
		return KindGone, true
	case http.StatusUnprocessableEntity:
		return KindInvalid, true
	default:
		return 0, false
	}
}

var (
	unauthenticatedPattern = regexp.MustCompile(`\bnot[_ ]authenticated\b|\bjwt expired\b`)
	forbiddenPattern       = regexp.MustCompile(`\bnot[_ ]authori[sz]ed\b|\bforbidden\b|\bpermission denied\b`)
	tokenSpentPattern      = regexp.MustCompile(`\b(expired|used|consumed|revoked)\b`)
	invalidPattern         = regexp.MustCompile(`\binvalid\b|\bnot[_ ]found\b`)
)

// kindFromMessage is the fallback for procedures that raise plain exceptions.
// It is deliberately narrow; new procedures should raise PTnnn codes instead.
func kindFromMessage(message string) Kind {
	msg := strings.ToLower(strings.ReplaceAll(message, "_", " "))
	msg = strings.Join(strings.Fields(msg), " ")
	raw := strings.ToLower(message)
	switch {
	case unauthenticatedPattern.MatchString(raw) || unauthenticatedPattern.MatchString(msg):
		return KindUnauthenticated
	case forbiddenPattern.MatchString(raw) || forbiddenPattern.MatchString(msg):
		return KindForbidden
	case tokenSpentPattern.MatchString(msg):
		return KindGone
	case invalidPattern.MatchString(msg):
		return KindInvalid
	default:
		return KindUpstream
	}
}

// AsError unwraps err to a store Error.
func AsError(err error) (*Error, bool) {
	var dsErr *Error
	if errors.As(err, &dsErr) && dsErr != nil {
		return dsErr, true
	}
	return nil, false
}

// KindOf classifies any error; non-store errors are KindUpstream.
func KindOf(err error) Kind {
	if dsErr, ok := AsError(err); ok {
		return dsErr.Kind()
	}
	return KindUpstream
}
