package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ValentinKolb/dInv/lib/queue"
	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/ValentinKolb/dInv/rpc/transport/base"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var sessionLog = logger.GetLogger("session")

// SessionState is the state of a client session
type SessionState uint8

const (
	StateConnecting SessionState = iota
	StateAuthenticating
	StateServing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateServing:
		return "SERVING"
	default:
		return "CLOSED"
	}
}

// errSessionEnd ends a session after its final reply was written
var errSessionEnd = errors.New("session ended")

// Session serves one client connection. All connection state lives here.
type Session struct {
	id       string
	conn     net.Conn
	state    SessionState
	user     string
	requests *queue.Mailbox[common.Request]
	replies  *queue.Mailbox[common.Reply]

	// timeout bounds the handshake, the wait for a reply and every write
	timeout time.Duration
	// idleTimeout bounds the wait for the next request (0 = unbounded)
	idleTimeout time.Duration

	reader *base.RequestReader
}

// NewSession creates a session for an accepted connection
func NewSession(conn net.Conn, requests *queue.Mailbox[common.Request], timeout, idleTimeout time.Duration) *Session {
	return &Session{
		id:          uuid.NewString(),
		conn:        conn,
		state:       StateConnecting,
		requests:    requests,
		replies:     queue.NewMailbox[common.Reply](),
		timeout:     timeout,
		idleTimeout: idleTimeout,
		reader:      base.NewRequestReader(conn, common.SplitRequest),
	}
}

// ID returns the unique id of the session (used in logs)
func (s *Session) ID() string {
	return s.id
}

// Run drives the session state machine until the connection closes or ctx is done.
func (s *Session) Run(ctx context.Context) {
	common.SessionOpened()
	defer s.close()

	sessionLog.Debugf("[%s] connection from %s", s.id, s.conn.RemoteAddr())

	for s.state != StateClosed {
		if err := ctx.Err(); err != nil {
			s.logEnd(err)
			break
		}

		var err error
		switch s.state {
		case StateConnecting:
			err = s.handshake(ctx)
		case StateAuthenticating:
			err = s.authenticate(ctx)
		case StateServing:
			err = s.serveOne(ctx)
		}

		if err != nil {
			s.logEnd(err)
			s.state = StateClosed
		}
	}
}

// handshake completes the secure transport handshake: CONNECTING -> AUTHENTICATING
func (s *Session) handshake(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := base.Handshake(hctx, s.conn); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	s.state = StateAuthenticating
	return nil
}

// authenticate reads the login request: AUTHENTICATING -> SERVING
func (s *Session) authenticate(ctx context.Context) error {
	raw, err := s.read(s.timeout)
	if err != nil {
		return err
	}

	req := common.NewRequest(raw, s.replies)
	if req.Cmd.CmdType != common.CmdTAuth || req.Cmd.Err != nil {
		sessionLog.Infof("[%s] expected AUTH, got %s", s.id, req.Cmd.CmdType)
		_ = s.write(common.NewFailureReply(""))
		return errSessionEnd
	}

	reply, err := s.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	if err := s.write(reply); err != nil {
		return err
	}
	if !reply.IsPlainSuccess() {
		sessionLog.Infof("[%s] authentication of %q failed", s.id, req.Cmd.Username)
		return errSessionEnd
	}

	s.user = req.Cmd.Username
	s.state = StateServing
	sessionLog.Infof("[%s] %q logged in from %s", s.id, s.user, s.conn.RemoteAddr())
	return nil
}

// serveOne handles a single request in the SERVING state
func (s *Session) serveOne(ctx context.Context) error {
	raw, err := s.read(s.idleTimeout)
	if err != nil {
		return err
	}

	req := common.NewRequest(raw, s.replies)
	switch req.Cmd.CmdType {
	case common.CmdTGet, common.CmdTGetAll, common.CmdTPut, common.CmdTMod, common.CmdTDel:
		sessionLog.Debugf("[%s] %s by %q", s.id, req.Cmd.CmdType, s.user)
	default:
		sessionLog.Infof("[%s] %s by %q", s.id, req.Cmd.CmdType, s.user)
	}

	reply, err := s.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	return s.write(reply)
}

// read returns the next request. idle bounds the wait for it to start.
// A request that is too large or never completes gets FAILURE and ends the session,
// the rest of the stream cannot be framed anymore.
func (s *Session) read(idle time.Duration) ([]byte, error) {
	raw, err := s.reader.Next(idle, s.timeout)
	if errors.Is(err, base.ErrRequestTooLarge) || errors.Is(err, base.ErrIncompleteRequest) {
		sessionLog.Warningf("[%s] %v", s.id, err)
		_ = s.write(common.NewFailureReply(""))
		return nil, errSessionEnd
	}
	if err != nil {
		return nil, err
	}
	// the reader reuses its buffer, the request outlives the next read
	return bytes.Clone(raw), nil
}

// roundTrip hands the request to the worker and waits for the reply.
// If the worker does not answer within the timeout, the client gets FAILURE TIMEOUT and the session ends.
// Shutdown does not interrupt the wait, the worker answers every queued request before it stops.
func (s *Session) roundTrip(ctx context.Context, req *common.Request) (*common.Reply, error) {
	if !s.requests.Put(req) {
		_ = s.write(common.NewFailureReply(common.ReasonShutdown))
		return nil, errSessionEnd
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	reply, err := s.replies.Wait(wctx)
	if err == nil {
		return reply, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		sessionLog.Warningf("[%s] no reply to %s within %s", s.id, req.Cmd.CmdType, s.timeout)
		_ = s.write(common.NewFailureReply(common.ReasonTimeout))
	}
	return nil, fmt.Errorf("waiting for reply: %w", err)
}

func (s *Session) write(reply *common.Reply) error {
	return base.WriteReply(s.conn, reply.Payload, s.timeout)
}

// close releases all resources: CLOSED
func (s *Session) close() {
	s.state = StateClosed
	// late replies of the worker are dropped
	s.replies.Close()
	_ = s.conn.Close()
	common.SessionClosed()
}

func (s *Session) logEnd(err error) {
	switch {
	case errors.Is(err, errSessionEnd):
		sessionLog.Debugf("[%s] closed by server", s.id)
	case errors.Is(err, io.EOF):
		sessionLog.Debugf("[%s] closed by client", s.id)
	case errors.Is(err, net.ErrClosed), errors.Is(err, context.Canceled):
		sessionLog.Debugf("[%s] closed during shutdown", s.id)
	default:
		sessionLog.Infof("[%s] closed in state %s: %v", s.id, s.state, err)
	}
}
