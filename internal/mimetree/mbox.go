package mimetree

import "bytes"

// SplitMbox splits mbox data on "From " separator lines. The separators are
// dropped and ">From " quoting is undone.
func SplitMbox(data []byte) [][]byte {
	var messages [][]byte
	var current []byte
	started := false

	rest := data
	for len(rest) > 0 {
		line, tail := cutLine(rest)
		rest = tail

		atStart := len(current) == 0 || bytes.HasSuffix(current, []byte("\n\n")) || bytes.HasSuffix(current, []byte("\r\n\r\n"))
		if bytes.HasPrefix(line, []byte("From ")) && (!started || atStart) {
			if started && len(bytes.TrimSpace(current)) > 0 {
				messages = append(messages, current)
			}
			current = nil
			started = true
			continue
		}
		if !started {
			continue
		}

		if bytes.HasPrefix(line, []byte(">From ")) {
			line = line[1:]
		}
		current = append(current, line...)
	}

	if started && len(bytes.TrimSpace(current)) > 0 {
		messages = append(messages, current)
	}

	return messages
}

func cutLine(data []byte) (line, rest []byte) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[:i+1], data[i+1:]
	}
	return data, nil
}
