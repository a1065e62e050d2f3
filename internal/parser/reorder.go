package parser

import "log/slog"

// moveSecurityBeforeHeaders moves every secure-button part in front of the
// headers part most recently seen at the same message nesting level. An
// embedded message (".rfc822" ... ".rfc822.end") opens a level of its own.
// A button with no headers before it at its level stays where it is.
func moveSecurityBeforeHeaders(parts []*Part, logger *slog.Logger) []*Part {
	out := make([]*Part, 0, len(parts))
	lastHeaders := -1
	var stack []int

	for _, part := range parts {
		if part == nil {
			continue
		}

		switch {
		case part.ID.IsEmbeddedStart():
			stack = append(stack, lastHeaders)
			lastHeaders = -1
		case part.ID.IsEmbeddedEnd():
			if len(stack) == 0 {
				logger.Warn("embedded message end without start", "id", part.ID)
				lastHeaders = -1
			} else {
				lastHeaders = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			}
		}

		switch part.MimeType {
		case MimeHeaders:
			out = append(out, part)
			lastHeaders = len(out) - 1

		case MimeSecureButton:
			if lastHeaders < 0 {
				logger.Warn("secure button without preceding headers", "id", part.ID)
				out = append(out, part)
				continue
			}
			out = append(out, nil)
			copy(out[lastHeaders+1:], out[lastHeaders:])
			out[lastHeaders] = part
			lastHeaders++

		default:
			out = append(out, part)
		}
	}

	if len(stack) != 0 {
		logger.Warn("embedded message start without end", "open", len(stack))
	}

	return out
}
