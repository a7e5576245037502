package supervisor

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"unicode/utf8"
)

// MaxLineBytes is the longest worker output line kept; longer lines are
// skipped up to their terminating newline.
const MaxLineBytes = 64 * 1024

// scanLines reads newline-delimited text from r until EOF. Each complete
// line is handed to emit without its line terminator. Lines that are not
// valid UTF-8 or exceed MaxLineBytes are reported to skip and reading
// continues with the next line.
func scanLines(r io.Reader, emit func(line string), skip func()) error {
	br := bufio.NewReaderSize(r, MaxLineBytes)
	for {
		line, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			skip()
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = br.ReadSlice('\n')
			}
			if err != nil {
				return endOfStream(err)
			}
			continue
		}
		if len(line) > 0 {
			line = bytes.TrimSuffix(line, []byte{'\n'})
			line = bytes.TrimSuffix(line, []byte{'\r'})
			if utf8.Valid(line) {
				emit(string(line))
			} else {
				skip()
			}
		}
		if err != nil {
			return endOfStream(err)
		}
	}
}

// endOfStream maps the ways a pipe ends normally to nil.
func endOfStream(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
