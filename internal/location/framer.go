package location

import (
	"bufio"
	"errors"
	"io"
)

// DefaultMaxLine matches the receiver-side buffer: 255 bytes plus terminator.
const DefaultMaxLine = 256

// Framer splits a byte stream into CR/LF terminated lines. Empty lines are
// skipped. A line that does not fit is dropped up to its terminator.
type Framer struct {
	max        int
	buf        []byte
	discarding bool

	// Overflows counts dropped lines.
	Overflows int
}

func NewFramer(maxLine int) *Framer {
	if maxLine <= 1 {
		maxLine = DefaultMaxLine
	}
	return &Framer{max: maxLine, buf: make([]byte, 0, maxLine)}
}

// Push adds one byte. It returns a complete line when b terminates one, and
// ErrLineTooLong when b overflows the current line.
func (f *Framer) Push(b byte) (string, bool, error) {
	if b == '\n' || b == '\r' {
		f.discarding = false
		if len(f.buf) == 0 {
			return "", false, nil
		}
		line := string(f.buf)
		f.buf = f.buf[:0]
		return line, true, nil
	}
	if f.discarding {
		return "", false, nil
	}
	if len(f.buf) >= f.max-1 {
		f.buf = f.buf[:0]
		f.discarding = true
		f.Overflows++
		return "", false, ErrLineTooLong
	}
	f.buf = append(f.buf, b)
	return "", false, nil
}

// ReadLines feeds r through f and calls fn for every line and for every
// overflow. It returns nil at EOF.
func (f *Framer) ReadLines(r io.Reader, fn func(line string, err error)) error {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line, ok, perr := f.Push(b)
		if perr != nil {
			fn("", perr)
			continue
		}
		if ok {
			fn(line, nil)
		}
	}
}
