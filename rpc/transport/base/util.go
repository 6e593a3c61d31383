package base

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// MaxRequestSize bounds a single request and is the read buffer of a session.
const MaxRequestSize = 16 * 1024

var (
	// ErrRequestTooLarge is returned by RequestReader.Next if a request does not end within MaxRequestSize bytes
	ErrRequestTooLarge = errors.New("request too large")
	// ErrIncompleteRequest is returned by RequestReader.Next if the rest of a started request did not arrive in time
	ErrIncompleteRequest = errors.New("incomplete request")
)

// handshaker is implemented by connections with an explicit handshake (*tls.Conn)
type handshaker interface {
	HandshakeContext(ctx context.Context) error
}

// Handshake completes the handshake of conn if its transport has one, a no-op otherwise
func Handshake(ctx context.Context, conn net.Conn) error {
	if hs, ok := conn.(handshaker); ok {
		return hs.HandshakeContext(ctx)
	}
	return nil
}

// ReadRequest returns the data of a single read into buf. A timeout > 0 bounds the wait for data.
// The returned slice aliases buf and may be empty. Use RequestReader for framed requests.
func ReadRequest(conn net.Conn, buf []byte, timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	n, err := conn.Read(buf)
	if n > 0 {
		// data read together with an error is still a request, the error surfaces on the next read
		return buf[:n], nil
	}
	return buf[:0], err
}

// SplitFunc finds the first request in data, which always ends where a read ended.
// It returns the number of bytes consumed and the request. Zero advance asks for more data;
// a positive advance with a nil request skips bytes between requests.
type SplitFunc func(data []byte) (advance int, request []byte, err error)

// RequestReader splits the byte stream of a connection into requests.
// A request may span several reads (a TLS record is at most 16 KiB and often much smaller)
// and a single read may carry several requests.
type RequestReader struct {
	conn       net.Conn
	split      SplitFunc
	buf        []byte
	start, end int
	err        error
}

// NewRequestReader creates a reader with a buffer of MaxRequestSize bytes
func NewRequestReader(conn net.Conn, split SplitFunc) *RequestReader {
	return &RequestReader{
		conn:  conn,
		split: split,
		buf:   make([]byte, MaxRequestSize),
	}
}

// Next returns the next request. idle bounds the wait for the first byte of the request,
// timeout the wait for the rest of a started request. A value of 0 means no bound.
// The returned slice is only valid until the next call.
func (r *RequestReader) Next(idle, timeout time.Duration) ([]byte, error) {
	for {
		for r.end > r.start {
			advance, request, err := r.split(r.buf[r.start:r.end])
			if err != nil {
				return nil, err
			}
			if advance == 0 {
				break
			}
			r.start += advance
			if request != nil {
				return request, nil
			}
		}

		// compact the pending bytes to the front of the buffer
		if r.start > 0 {
			r.end = copy(r.buf, r.buf[r.start:r.end])
			r.start = 0
		}
		if r.end == len(r.buf) {
			r.end = 0
			return nil, ErrRequestTooLarge
		}
		if r.err != nil {
			return nil, r.wrap(r.err)
		}

		wait := idle
		if r.end > 0 {
			wait = timeout
		}
		var deadline time.Time
		if wait > 0 {
			deadline = time.Now().Add(wait)
		}
		if err := r.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}

		n, err := r.conn.Read(r.buf[r.end:])
		r.end += n
		if err != nil {
			// bytes read together with an error are split first, the error surfaces afterward
			if n > 0 {
				r.err = err
				continue
			}
			return nil, r.wrap(err)
		}
	}
}

// wrap marks errors that cut off a started request
func (r *RequestReader) wrap(err error) error {
	if r.end > 0 {
		return fmt.Errorf("%w after %d bytes: %w", ErrIncompleteRequest, r.end, err)
	}
	return err
}

// WriteReply writes the full payload to conn. A timeout > 0 bounds the write.
func WriteReply(conn net.Conn, payload []byte, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	_, err := conn.Write(payload)
	return err
}
