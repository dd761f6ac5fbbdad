package frame

import (
	"bytes"
	"strings"

	ncerr "arrayd/internal/errors"
)

// SuccessText is the literal acknowledgment sent for a handled request.
const SuccessText = "Success"

// failureText stands in for an empty failure reason.
const failureText = "Failure"

// Reply is the single answer to a request: Success, or Failure with a
// human-readable reason.
type Reply struct {
	OK     bool
	Reason string
}

// Success returns the acknowledgment reply.
func Success() Reply { return Reply{OK: true} }

// Failure returns a failure reply.  The reason never reads as the
// success literal and never contains a NUL, so clients can always
// tell the outcomes apart.
func Failure(reason string) Reply {
	reason = strings.ReplaceAll(reason, "\x00", "")
	switch reason {
	case "":
		reason = failureText
	case SuccessText:
		reason = failureText + ": " + SuccessText
	}
	return Reply{Reason: reason}
}

// FromError maps a handler result onto a reply.
func FromError(err error) Reply {
	if err == nil {
		return Success()
	}
	return Failure(err.Error())
}

// Encode renders the reply as NUL-terminated ASCII.
func (r Reply) Encode() []byte {
	text := SuccessText
	if !r.OK {
		text = r.Reason
	}
	out := make([]byte, len(text)+1)
	copy(out, text)
	return out
}

// Err converts a reply received by a client into an error: nil for
// Success, *errors.RemoteError otherwise.
func (r Reply) Err() error {
	if r.OK {
		return nil
	}
	return &ncerr.RemoteError{Reason: r.Reason}
}

func (r Reply) String() string {
	if r.OK {
		return SuccessText
	}
	return r.Reason
}

// ParseReply reads a reply up to its NUL terminator.  A missing
// terminator is tolerated.
func ParseReply(b []byte) Reply {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if string(b) == SuccessText {
		return Success()
	}
	return Failure(string(b))
}
