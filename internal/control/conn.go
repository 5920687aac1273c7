package control

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	// MaxLineSize bounds one JSON line; longer lines are discarded
	MaxLineSize = 64 * 1024
	// WriteTimeout bounds a single write on a connection that supports deadlines
	WriteTimeout = 2 * time.Second
)

// DecodeError wraps a line that could not be decoded. It is not fatal:
// the reader can keep going with the next line.
type DecodeError struct {
	Line []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("control: bad line %q: %v", truncate(e.Line, 120), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err only concerns a single line
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Reader splits a byte stream into newline-terminated messages. Partial
// reads are buffered until the newline arrives; several messages in one
// read come out one per Next call.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 4096)}
}

// Next returns the next message. A *DecodeError means the line was skipped;
// any other error (io.EOF included) means the stream is finished.
func (r *Reader) Next() (Message, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		msg, err := Decode(line)
		if err != nil {
			return nil, &DecodeError{Line: line, Err: err}
		}
		return msg, nil
	}
}

// readLine returns one line without its terminator. A trailing fragment
// without newline at EOF is dropped.
func (r *Reader) readLine() ([]byte, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := r.br.ReadSlice('\n')
		if !tooLong {
			buf = append(buf, chunk...)
			if len(buf) > MaxLineSize {
				tooLong = true
				buf = nil
			}
		}
		switch {
		case err == nil:
			if tooLong {
				return nil, &DecodeError{Line: []byte("<oversized line>"), Err: ErrInvalid}
			}
			return buf[:len(buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, err
		}
	}
}

// Writer sends messages as JSON lines. It is safe for concurrent use so the
// server can broadcast while a handler replies on the same connection.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// NewWriter wraps w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send encodes msg and writes it followed by a newline
func (w *Writer) Send(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.w.(deadliner); ok {
		d.SetWriteDeadline(time.Now().Add(WriteTimeout))
	}
	_, err = w.w.Write(data)
	return err
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
