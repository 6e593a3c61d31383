package replication

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dInv/lib/store/sqlstore"
	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/ValentinKolb/dInv/rpc/transport/base"
	"github.com/google/uuid"
)

// failure reasons sent by the receiver
const (
	ReasonHeader   = "BAD_HEADER"
	ReasonAuth     = "AUTH"
	ReasonTooLarge = "TOO_LARGE"
	ReasonInvalid  = "INVALID_DATABASE"
	ReasonIO       = "IO"
)

// maxHeaderSize bounds the REPLICATE line
const maxHeaderSize = 4096

// errRejected carries the reason sent to the sender
type errRejected struct {
	reason string
	err    error
}

func (e *errRejected) Error() string {
	if e.err == nil {
		return e.reason
	}
	return fmt.Sprintf("%s: %v", e.reason, e.err)
}

func (e *errRejected) Unwrap() error {
	return e.err
}

func reject(reason string, err error) error {
	return &errRejected{reason: reason, err: err}
}

// Receiver is the receiving side of the replication sub-protocol. Every accepted stream replaces
// the target file atomically. Streams are installed one at a time.
type Receiver struct {
	config common.BackupPeerConfig
	mu     sync.Mutex
}

// NewReceiver creates a receiver for config.TargetPath
func NewReceiver(config common.BackupPeerConfig) *Receiver {
	return &Receiver{config: config}
}

func (r *Receiver) timeout() time.Duration {
	if r.config.TimeoutSecond <= 0 {
		return defaultTimeout
	}
	return time.Duration(r.config.TimeoutSecond) * time.Second
}

// Handle serves a single replication stream and answers SUCCESS or FAILURE <reason>.
// It has the signature of transport.ConnHandler.
func (r *Receiver) Handle(ctx context.Context, conn net.Conn) {
	start := time.Now()
	timeout := r.timeout()

	hctx, cancel := context.WithTimeout(ctx, timeout)
	err := base.Handshake(hctx, conn)
	cancel()
	if err != nil {
		log.Warningf("handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}

	written, err := r.receive(conn, timeout)

	reply := common.NewSuccessReply()
	if err != nil {
		var rejected *errRejected
		reason := ReasonIO
		if errors.As(err, &rejected) {
			reason = rejected.reason
		}
		log.Warningf("replication from %s rejected: %v", conn.RemoteAddr(), err)
		reply = common.NewFailureReply(reason)
	} else {
		log.Infof("installed %d bytes from %s as %s in %s", written, conn.RemoteAddr(), r.config.TargetPath, time.Since(start))
	}

	if err := base.WriteReply(conn, reply.Payload, timeout); err != nil {
		log.Warningf("failed to answer %s: %v", conn.RemoteAddr(), err)
	}
}

// receive reads the header and installs the stream. It returns the number of bytes installed.
func (r *Receiver) receive(conn net.Conn, timeout time.Duration) (int64, error) {
	br := bufio.NewReaderSize(&deadlineReader{conn: conn, timeout: timeout}, maxHeaderSize)

	line, err := br.ReadSlice('\n')
	if err != nil {
		return 0, reject(ReasonHeader, err)
	}
	verb, psk, ok := strings.Cut(strings.TrimRight(string(line), "\r\n"), " ")
	if !ok || verb != Verb {
		return 0, reject(ReasonHeader, fmt.Errorf("unexpected header %q", verb))
	}
	if subtle.ConstantTimeCompare([]byte(psk), []byte(r.config.PSK)) != 1 {
		return 0, reject(ReasonAuth, errors.New("wrong pre-shared key"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.install(br)
}

// install writes the stream to a temporary file next to the target, validates it and renames it
// over the target. The temporary file is removed on any error.
func (r *Receiver) install(src io.Reader) (written int64, err error) {
	target := r.config.TargetPath
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, reject(ReasonIO, err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(target), uuid.NewString()))
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, reject(ReasonIO, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	limit := r.config.MaxSizeBytes
	if limit > 0 {
		src = io.LimitReader(src, limit+1)
	}
	written, err = io.Copy(f, src)
	if err != nil {
		return written, reject(ReasonIO, err)
	}
	if limit > 0 && written > limit {
		return written, reject(ReasonTooLarge, fmt.Errorf("stream exceeds %d bytes", limit))
	}

	if err = f.Sync(); err != nil {
		return written, reject(ReasonIO, err)
	}
	if err = f.Close(); err != nil {
		return written, reject(ReasonIO, err)
	}

	if err = validate(tmp); err != nil {
		return written, reject(ReasonInvalid, err)
	}

	if err = os.Rename(tmp, target); err != nil {
		return written, reject(ReasonIO, err)
	}
	syncDir(dir)
	return written, nil
}

// validate checks that path is a store the inventory server could serve
func validate(path string) error {
	s := sqlstore.NewSQLStore(path)
	if err := s.Open(); err != nil {
		return err
	}
	defer s.Close()
	return s.ValidateSchema()
}

// syncDir persists the rename, errors are ignored (not supported on every platform)
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// deadlineReader refreshes the read deadline before every read, so only a stalled stream times out
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.conn.Read(p)
}
