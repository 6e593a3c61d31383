package client

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/ValentinKolb/dInv/rpc/serializer"
	"github.com/ValentinKolb/dInv/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// maxReplySize bounds a single reply (GET ALL of a large inventory)
const maxReplySize = 64 * 1024 * 1024

// ErrFailure is matched (errors.Is) by every error caused by a FAILURE reply
var ErrFailure = errors.New("request failed")

// ReplyError is returned for a FAILURE reply. Reason is empty for a plain FAILURE.
type ReplyError struct {
	Reason string
}

func (e *ReplyError) Error() string {
	if e.Reason == "" {
		return "server replied " + common.ReplyFailure
	}
	return fmt.Sprintf("server replied %s %s", common.ReplyFailure, e.Reason)
}

func (e *ReplyError) Is(target error) bool {
	return target == ErrFailure
}

// IsBusy returns true if the server turned the connection away because all session slots were taken
func IsBusy(err error) bool {
	var re *ReplyError
	return errors.As(err, &re) && re.Reason == common.ReasonBusy
}

// rpcClientAdapter stores everything needed to exchange requests over a single connection.
// The protocol is strictly request/reply, so the connection is used by one request at a time.
type rpcClientAdapter struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
	buf     []byte
}

// invokeRequest is used by all client methods to send a request and read its reply.
// If records is true the reply is read until its group separator.
// It returns an error for transport errors and FAILURE replies.
func (a *rpcClientAdapter) invokeRequest(req []byte, records bool) (*common.Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return nil, errors.New("client is closed")
	}
	// the server could not frame the rest of the stream after an oversized request
	if len(req) > base.MaxRequestSize {
		return nil, fmt.Errorf("%w: %d bytes, at most %d", base.ErrRequestTooLarge, len(req), base.MaxRequestSize)
	}

	if err := base.WriteReply(a.conn, req, a.timeout); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	payload, err := a.readReply(records)
	if err != nil {
		return nil, err
	}

	reply := &common.Reply{Payload: payload}
	if !reply.Ok() {
		return nil, toError(payload)
	}
	return reply, nil
}

// readReply reads a single reply. Replies carrying records may span several reads.
func (a *rpcClientAdapter) readReply(records bool) ([]byte, error) {
	var payload []byte
	for {
		chunk, err := base.ReadRequest(a.conn, a.buf, a.timeout)
		if err != nil {
			if len(payload) > 0 {
				return nil, fmt.Errorf("reply truncated after %d bytes: %w", len(payload), err)
			}
			return nil, fmt.Errorf("failed to read reply: %w", err)
		}
		payload = append(payload, chunk...)

		if !records || !bytes.HasPrefix(payload, []byte(common.ReplySuccess)) {
			return payload, nil
		}
		if len(payload) > 0 && payload[len(payload)-1] == serializer.GroupSeparator {
			return payload, nil
		}
		if len(payload) > maxReplySize {
			return nil, fmt.Errorf("reply exceeds %d bytes", maxReplySize)
		}
	}
}

// toError converts a FAILURE reply into a ReplyError
func toError(payload []byte) error {
	text := strings.TrimSpace(string(payload))
	if !strings.HasPrefix(text, common.ReplyFailure) {
		return fmt.Errorf("unexpected reply %q", text)
	}
	return &ReplyError{Reason: strings.TrimSpace(strings.TrimPrefix(text, common.ReplyFailure))}
}
