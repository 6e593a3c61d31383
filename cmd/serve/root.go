package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dInv/cmd/util"
	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/ValentinKolb/dInv/rpc/replication"
	"github.com/ValentinKolb/dInv/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = common.DefaultServerConfig()
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the inventory server",
		Long: `Start the inventory server with the specified configuration. The configuration can be set via command line flags, environment variables or a KEY=VALUE config file (--config). The format of the environment variables is DINV_<flag> (e.g. DINV_MAX_SESSIONS=16). Values of the config file override everything else.

The database must exist (see init-db). The server validates its schema at startup and refuses to start if it does not match.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	defaults := common.DefaultServerConfig()

	// add flags
	key := "config"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("KEY=VALUE config file (keys: PORT, BACKUP_SERVER, BACKUP_PORT, BACKUP_PSK, DATABASE, INTERVAL, CERT_FILE, KEY_FILE, CA_FILE, BACKUP_CA_FILE, MAX_CLIENTS, TIMEOUT). Overrides all other settings"))

	key = "host"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0", cmdUtil.WrapString("The address the server listens on"))

	key = "port"
	ServeCmd.PersistentFlags().Int(key, 4466, cmdUtil.WrapString("The port the server listens on"))

	key = "db"
	ServeCmd.PersistentFlags().String(key, defaults.DatabasePath, cmdUtil.WrapString("The SQLite database file holding the items and users"))

	key = "max-sessions"
	ServeCmd.PersistentFlags().Int(key, defaults.MaxSessions, cmdUtil.WrapString("How many clients are served at the same time. Further clients are rejected with FAILURE BUSY"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, defaults.TimeoutSecond, cmdUtil.WrapString("Timeout in seconds for the handshake, the reply of the database worker and every write"))

	key = "idle-timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Close sessions without a request for this many seconds (0 = never)"))

	key = "interval"
	ServeCmd.PersistentFlags().String(key, "24:H", cmdUtil.WrapString("How often the database is replicated to the backup peer. Format <n>:<unit> with unit H, M or S, or a duration like 90s. 0 disables the timer"))

	key = "backup-host"
	ServeCmd.PersistentFlags().String(key, "localhost", cmdUtil.WrapString("The host of the backup peer"))

	key = "backup-port"
	ServeCmd.PersistentFlags().Int(key, 6644, cmdUtil.WrapString("The port of the backup peer"))

	key = "backup-psk"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The pre-shared key sent to the backup peer (better use DINV_BACKUP_PSK)"))

	key = "backup-timeout"
	ServeCmd.PersistentFlags().Int64(key, defaults.Backup.TimeoutSecond, cmdUtil.WrapString("Timeout in seconds for connecting to the backup peer and every read or write of a replication"))

	key = "backup-chunk-size"
	ServeCmd.PersistentFlags().Int(key, defaults.Backup.ChunkSize, cmdUtil.WrapString("Size in bytes of the chunks the database is streamed in"))

	key = "backup-ca"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("PEM file with the CA certificate used to verify the backup peer (default: system roots)"))

	key = "backup-cert"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("PEM file with the client certificate presented to the backup peer"))

	key = "backup-key"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("PEM file with the key of the backup client certificate"))

	key = "tls-cert"
	ServeCmd.PersistentFlags().String(key, "cert.pem", cmdUtil.WrapString("PEM file with the server certificate"))

	key = "tls-key"
	ServeCmd.PersistentFlags().String(key, "key.pem", cmdUtil.WrapString("PEM file with the server key"))

	key = "tls-ca"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("PEM file with a CA certificate. If set, clients must present a certificate signed by it"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Serve Prometheus metrics on this address (e.g. localhost:9466). Empty disables the endpoint"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags, environment variables and config file
// and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	if path := viper.GetString("config"); path != "" {
		if err := cmdUtil.ApplyLegacyConfig(path); err != nil {
			return err
		}
	}

	endpoint, err := cmdUtil.JoinHostPort(viper.GetString("host"), viper.GetInt("port"))
	if err != nil {
		return err
	}
	backupEndpoint, err := cmdUtil.JoinHostPort(viper.GetString("backup-host"), viper.GetInt("backup-port"))
	if err != nil {
		return fmt.Errorf("backup peer: %w", err)
	}

	interval := time.Duration(0)
	if raw := viper.GetString("interval"); raw != "" && raw != "0" {
		if interval, err = common.ParseInterval(raw); err != nil {
			return err
		}
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = endpoint
	serveCmdConfig.DatabasePath = viper.GetString("db")
	serveCmdConfig.MaxSessions = viper.GetInt("max-sessions")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.IdleTimeoutSecond = viper.GetInt64("idle-timeout")
	serveCmdConfig.BackupInterval = interval
	serveCmdConfig.Backup = common.BackupConfig{
		Endpoint:      backupEndpoint,
		PSK:           viper.GetString("backup-psk"),
		TimeoutSecond: viper.GetInt64("backup-timeout"),
		ChunkSize:     viper.GetInt("backup-chunk-size"),
		TLS: common.TLSConf{
			CAFile:   viper.GetString("backup-ca"),
			CertFile: viper.GetString("backup-cert"),
			KeyFile:  viper.GetString("backup-key"),
		},
	}
	serveCmdConfig.TLS = common.TLSConf{
		CertFile: viper.GetString("tls-cert"),
		KeyFile:  viper.GetString("tls-key"),
		CAFile:   viper.GetString("tls-ca"),
	}
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return serveCmdConfig.Validate()
}

// run starts the inventory server and blocks until it stops
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	replicator, err := replication.NewController(serveCmdConfig.Backup)
	if err != nil {
		return err
	}

	serv, err := server.NewServer(serveCmdConfig, replicator)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serv.Serve(ctx)
}
