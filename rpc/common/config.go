package common

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// TLSConf holds the certificate material of the secure transport.
// Server side: CertFile/KeyFile are required, CAFile enables client certificate verification.
// Client side: CAFile replaces the system roots, CertFile/KeyFile present a client certificate.
type TLSConf struct {
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// SocketConf holds the TCP tuning applied to every accepted or dialed connection
type SocketConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
	WriteBufferSize int
	ReadBufferSize  int
}

// DefaultSocketConf returns the socket tuning used when nothing is configured
func DefaultSocketConf() SocketConf {
	return SocketConf{
		TCPNoDelay:      true,
		TCPKeepAliveSec: 30,
	}
}

// --------------------------------------------------------------------------
// Inventory server configuration struct
// --------------------------------------------------------------------------

// BackupConfig is the client side of the replication sub-protocol
type BackupConfig struct {
	// Endpoint of the backup peer (host:port)
	Endpoint string
	// PSK is sent in the REPLICATE framing line
	PSK string
	// TimeoutSecond bounds dialing and every read/write of a replication
	TimeoutSecond int64
	// ChunkSize is the size of the file chunks streamed to the peer
	ChunkSize int
	// TLS material used to dial the peer
	TLS TLSConf
}

// ServerConfig holds all configuration parameters of the inventory server.
type ServerConfig struct {
	// Endpoint the server listens on (host:port)
	Endpoint string
	// DatabasePath is the SQLite file owned by the database worker
	DatabasePath string

	// MaxSessions bounds the number of concurrently served clients
	MaxSessions int
	// TimeoutSecond bounds the wait for a reply of the worker and every socket write
	TimeoutSecond int64
	// IdleTimeoutSecond closes sessions without a request for this long (0 = never)
	IdleTimeoutSecond int64

	// BackupInterval is the period of the backup timer (0 = disabled)
	BackupInterval time.Duration
	Backup         BackupConfig

	TLS    TLSConf
	Socket SocketConf

	// MetricsEndpoint serves /metrics if not empty
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// DefaultServerConfig returns the configuration used for every value that is not set explicitly
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Endpoint:       "0.0.0.0:4466",
		DatabasePath:   "items.db",
		MaxSessions:    64,
		TimeoutSecond:  10,
		BackupInterval: 24 * time.Hour,
		Backup: BackupConfig{
			Endpoint:      "localhost:6644",
			TimeoutSecond: 30,
			ChunkSize:     16 * 1024,
		},
		Socket:   DefaultSocketConf(),
		LogLevel: "info",
	}
}

// Timeout returns the reply timeout as a duration
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// Validate checks the configuration for values the server cannot start with
func (c *ServerConfig) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint must not be empty"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database path must not be empty"))
	}
	if c.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("max sessions must be at least 1, got %d", c.MaxSessions))
	}
	if c.TimeoutSecond < 1 {
		errs = append(errs, fmt.Errorf("timeout must be at least 1 second, got %d", c.TimeoutSecond))
	}
	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
		errs = append(errs, errors.New("tls certificate and key file are required"))
	}
	if c.BackupInterval < 0 {
		errs = append(errs, errors.New("backup interval must not be negative"))
	}
	if c.BackupInterval > 0 && c.Backup.Endpoint == "" {
		errs = append(errs, errors.New("backup endpoint is required when the backup timer is enabled"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Inventory Server")
	addField("Endpoint", c.Endpoint)
	addField("Max Sessions", strconv.Itoa(c.MaxSessions))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.IdleTimeoutSecond > 0 {
		addField("Idle Timeout", fmt.Sprintf("%d sec", c.IdleTimeoutSecond))
	}

	addSection("TLS")
	addField("Certificate", c.TLS.CertFile)
	addField("Key", c.TLS.KeyFile)
	addField("Client CA", orNone(c.TLS.CAFile))

	addSection("Storage")
	addField("Database", c.DatabasePath)

	addSection("Backup")
	if c.BackupInterval > 0 {
		addField("Interval", c.BackupInterval.String())
	} else {
		addField("Interval", "disabled")
	}
	addField("Peer", c.Backup.Endpoint)
	addField("Pre-shared Key", mask(c.Backup.PSK))
	addField("Peer CA", orNone(c.Backup.TLS.CAFile))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	if c.MetricsEndpoint != "" {
		addSection("Metrics")
		addField("Endpoint", c.MetricsEndpoint)
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Backup peer configuration struct
// --------------------------------------------------------------------------

// BackupPeerConfig is the configuration of the receiving side of the replication sub-protocol
type BackupPeerConfig struct {
	// Endpoint the peer listens on
	Endpoint string
	// TargetPath is replaced atomically by every successful replication
	TargetPath string
	// PSK every sender must present
	PSK string
	// TimeoutSecond bounds every read of a replication stream
	TimeoutSecond int64
	// MaxSizeBytes rejects streams larger than this (0 = unlimited)
	MaxSizeBytes int64

	TLS    TLSConf
	Socket SocketConf

	LogLevel string
}

// DefaultBackupPeerConfig returns the configuration used for every value that is not set explicitly
func DefaultBackupPeerConfig() BackupPeerConfig {
	return BackupPeerConfig{
		Endpoint:      "0.0.0.0:6644",
		TargetPath:    "backup.db",
		TimeoutSecond: 30,
		Socket:        DefaultSocketConf(),
		LogLevel:      "info",
	}
}

// Validate checks the configuration for values the backup peer cannot start with
func (c *BackupPeerConfig) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint must not be empty"))
	}
	if c.TargetPath == "" {
		errs = append(errs, errors.New("target path must not be empty"))
	}
	if c.PSK == "" {
		errs = append(errs, errors.New("pre-shared key must not be empty"))
	}
	if c.TimeoutSecond < 1 {
		errs = append(errs, fmt.Errorf("timeout must be at least 1 second, got %d", c.TimeoutSecond))
	}
	if c.MaxSizeBytes < 0 {
		errs = append(errs, errors.New("max size must not be negative"))
	}
	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
		errs = append(errs, errors.New("tls certificate and key file are required"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// String returns a formatted string representation of the backup peer configuration
func (c *BackupPeerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Backup Peer")
	addField("Endpoint", c.Endpoint)
	addField("Target", c.TargetPath)
	addField("Pre-shared Key", mask(c.PSK))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.MaxSizeBytes > 0 {
		addField("Max Size", fmt.Sprintf("%d bytes", c.MaxSizeBytes))
	}

	addSection("TLS")
	addField("Certificate", c.TLS.CertFile)
	addField("Key", c.TLS.KeyFile)

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoint      string
	Username      string
	Password      string
	TimeoutSecond int
	TLS           TLSConf
	Socket        SocketConf
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("User", c.Username)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Server CA", orNone(c.TLS.CAFile))
	if c.TLS.InsecureSkipVerify {
		addField("Verify Server", "disabled")
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseInterval parses a backup interval. The legacy form is <n>:<unit> with unit H, M or S
// (case-insensitive), e.g. "24:H". Go durations like "90s" are accepted as well.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty interval")
	}

	num, unit, found := strings.Cut(s, ":")
	if !found {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid interval %q: must be <n>:<H|M|S> or a duration", s)
		}
		return d, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid interval %q: %q is not a non-negative number", s, num)
	}

	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "H":
		return time.Duration(n) * time.Hour, nil
	case "M":
		return time.Duration(n) * time.Minute, nil
	case "S":
		return time.Duration(n) * time.Second, nil
	default:
		return 0, fmt.Errorf("invalid interval %q: unit must be H, M or S", s)
	}
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return "********"
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
