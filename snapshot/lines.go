package snapshot

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// MaxLineBytes bounds a single JSONL record.
const MaxLineBytes = 1 << 20

var ErrLineTooLong = errors.New("record exceeds line limit")

// EachLine calls fn with every non-blank line of r and its 1-based number.
// A line longer than limit is drained without being buffered and handed to
// fn as ErrLineTooLong, so the caller can skip it like any other bad record.
func EachLine(r io.Reader, limit int, fn func(n int, line []byte, err error)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	n := 0
	for {
		line, tooLong, err := readLine(br, limit)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		n++
		if tooLong {
			fn(n, nil, fmt.Errorf("%w of %d bytes", ErrLineTooLong, limit))
			continue
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		fn(n, line, nil)
	}
}

func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		frag, isPrefix, err := br.ReadLine()
		if err != nil {
			return line, tooLong, err
		}
		if !tooLong {
			if len(line)+len(frag) > limit {
				tooLong, line = true, nil
			} else {
				line = append(line, frag...)
			}
		}
		if !isPrefix {
			return line, tooLong, nil
		}
	}
}
