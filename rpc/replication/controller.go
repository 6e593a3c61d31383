package replication

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/ValentinKolb/dInv/rpc/transport"
	"github.com/ValentinKolb/dInv/rpc/transport/base"
	"github.com/ValentinKolb/dInv/rpc/transport/secure"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("replication")

const (
	// Verb opens a replication stream: REPLICATE <psk>\n followed by the raw file
	Verb = "REPLICATE"

	defaultChunkSize = 16 * 1024
	defaultTimeout   = 30 * time.Second
	// maxResponseSize bounds the response of the peer
	maxResponseSize = 1024
)

// Controller is the sending side of the replication sub-protocol
type Controller struct {
	config    common.BackupConfig
	connector transport.IClientConnector
}

// NewController creates a controller streaming to the backup peer of config
func NewController(config common.BackupConfig) (*Controller, error) {
	if config.Endpoint == "" {
		return nil, errors.New("backup endpoint must not be empty")
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaultChunkSize
	}

	connector, err := secure.NewTLSClientConnector(config.TLS, common.DefaultSocketConf())
	if err != nil {
		return nil, fmt.Errorf("failed to create backup connector: %w", err)
	}
	return &Controller{config: config, connector: connector}, nil
}

func (c *Controller) timeout() time.Duration {
	if c.config.TimeoutSecond <= 0 {
		return defaultTimeout
	}
	return time.Duration(c.config.TimeoutSecond) * time.Second
}

// Replicate streams the file at path to the backup peer. The file must not be written to
// while it is streamed. It returns nil only if the peer answered SUCCESS.
func (c *Controller) Replicate(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	timeout := c.timeout()
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	conn, err := c.connector.Connect(dialCtx, c.config.Endpoint)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to backup peer %s: %w", c.config.Endpoint, err)
	}
	defer conn.Close()

	// cancellation aborts the stream at any point
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	header := []byte(fmt.Sprintf("%s %s\n", Verb, c.config.PSK))
	if err := base.WriteReply(conn, header, timeout); err != nil {
		return fmt.Errorf("failed to send header: %w", err)
	}

	sent, err := c.stream(conn, file, timeout)
	if err != nil {
		return fmt.Errorf("streaming failed after %d bytes: %w", sent, err)
	}

	if err := closeWrite(conn); err != nil {
		return fmt.Errorf("failed to finish stream: %w", err)
	}

	resp, err := readResponse(conn, timeout)
	if !bytes.HasPrefix(bytes.TrimSpace(resp), []byte(common.ReplySuccess)) {
		if err != nil {
			return fmt.Errorf("no response from backup peer: %w", err)
		}
		return fmt.Errorf("backup peer rejected the stream: %q", bytes.TrimSpace(resp))
	}

	log.Debugf("streamed %d bytes of %s to %s", sent, path, c.config.Endpoint)
	return nil
}

// stream copies the file in chunks of the configured size. Every chunk gets a fresh write deadline.
func (c *Controller) stream(conn net.Conn, file io.Reader, timeout time.Duration) (int64, error) {
	buf := make([]byte, c.config.ChunkSize)
	var sent int64
	for {
		n, rerr := file.Read(buf)
		if n > 0 {
			if err := base.WriteReply(conn, buf[:n], timeout); err != nil {
				return sent, err
			}
			sent += int64(n)
		}
		if errors.Is(rerr, io.EOF) {
			return sent, nil
		}
		if rerr != nil {
			return sent, rerr
		}
	}
}

// closeWrite half-closes the connection so the peer sees the end of the stream
func closeWrite(conn net.Conn) error {
	cw, ok := conn.(interface{ CloseWrite() error })
	if !ok {
		return fmt.Errorf("%T does not support half-close", conn)
	}
	return cw.CloseWrite()
}

// readResponse reads until the peer sent a complete SUCCESS line or closed the connection
func readResponse(conn net.Conn, timeout time.Duration) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, maxResponseSize)
	for len(buf) < maxResponseSize {
		n, err := conn.Read(buf[len(buf):maxResponseSize])
		buf = buf[:len(buf)+n]
		if successLine(buf) {
			return buf, nil
		}
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			return buf, err
		}
	}
	return buf, nil
}

// successLine reports whether resp starts with a terminated SUCCESS reply
func successLine(resp []byte) bool {
	resp = bytes.TrimLeft(resp, " \r\n")
	rest, ok := bytes.CutPrefix(resp, []byte(common.ReplySuccess))
	return ok && (bytes.HasPrefix(rest, []byte("\n")) || bytes.HasPrefix(rest, []byte("\r\n")))
}
