package process

import (
	"bufio"
	"bytes"
)

// SplitLines returns a bufio.SplitFunc that splits on "\n", "\r\n" and a
// bare "\r". Tools that redraw a progress line with carriage returns
// therefore yield one line per redraw, as soon as the "\r" is written.
// Terminators are not included in the token. The returned function keeps
// state and must serve a single scanner.
func SplitLines() bufio.SplitFunc {
	var afterCR bool

	return func(data []byte, atEOF bool) (int, []byte, error) {
		// A "\n" right after an already consumed "\r" is part of "\r\n".
		if afterCR && len(data) > 0 {
			afterCR = false
			if data[0] == '\n' {
				return 1, nil, nil
			}
		}

		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}

		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			if data[i] == '\r' {
				if i+1 == len(data) {
					afterCR = true
				} else if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
			}
			return i + 1, data[:i], nil
		}

		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
