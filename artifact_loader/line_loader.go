package artifact_loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/turbot/tailpipe-elb-log-forwarder/types"
)

const (
	// DefaultMaxLineSize is the longest line accepted unless configured otherwise
	DefaultMaxLineSize = 1024 * 1024
	initialBufferSize  = 64 * 1024
)

// LineLoader reads a decompressed artifact a line at a time.
// Iteration is forward-only and the loader can be consumed once:
//
//	for l.Next() {
//		line := l.Line()
//	}
//	if err := l.Err(); err != nil {
//		...
//	}
type LineLoader struct {
	scanner *bufio.Scanner
	line    types.RawLogLine
	number  int
	err     error
}

func NewLineLoader(r io.Reader, maxLineSize int) *LineLoader {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, min(initialBufferSize, maxLineSize)), maxLineSize)

	return &LineLoader{scanner: scanner}
}

// Next advances to the next line. It returns false at the end of the input or on the first error
func (l *LineLoader) Next() bool {
	if l.err != nil {
		return false
	}
	if !l.scanner.Scan() {
		if err := l.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				err = fmt.Errorf("line %d exceeds the maximum line size, %w", l.number+1, err)
			} else {
				err = fmt.Errorf("error reading line %d, %w", l.number+1, err)
			}
			l.err = err
		}
		return false
	}
	l.number++

	data := l.scanner.Bytes()
	if !utf8.Valid(data) {
		l.err = &DecodeError{Line: l.number}
		return false
	}

	l.line = types.RawLogLine{
		Number: l.number,
		Text:   strings.TrimSpace(string(data)),
	}
	return true
}

// Line returns the line read by the most recent call to Next
func (l *LineLoader) Line() types.RawLogLine {
	return l.line
}

// Err returns the first error encountered, nil at a clean end of input
func (l *LineLoader) Err() error {
	return l.err
}
