package backup

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dInv/cmd/util"
	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/ValentinKolb/dInv/rpc/replication"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	backupCmdConfig = common.DefaultBackupPeerConfig()
	BackupCmd       = &cobra.Command{
		Use:   "backup",
		Short: "Start a backup peer",
		Long: `Start a backup peer that receives replications of an inventory server (REPLICATE <psk> streams over TLS).

Every accepted stream is written to a temporary file next to the target, checked to be a valid inventory database and then renamed over the target, so the target is always either the previous or the new copy. The format of the environment variables is DINV_<flag> (e.g. DINV_PSK=...).`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	defaults := common.DefaultBackupPeerConfig()

	// add flags
	key := "host"
	BackupCmd.PersistentFlags().String(key, "0.0.0.0", cmdUtil.WrapString("The address the backup peer listens on"))

	key = "port"
	BackupCmd.PersistentFlags().Int(key, 6644, cmdUtil.WrapString("The port the backup peer listens on"))

	key = "target"
	BackupCmd.PersistentFlags().String(key, defaults.TargetPath, cmdUtil.WrapString("The file replaced by every successful replication"))

	key = "psk"
	BackupCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The pre-shared key senders must present (better use DINV_PSK)"))

	key = "timeout"
	BackupCmd.PersistentFlags().Int64(key, defaults.TimeoutSecond, cmdUtil.WrapString("Abort a replication if the sender stalls for this many seconds"))

	key = "max-size"
	BackupCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Reject replications larger than this many bytes (0 = unlimited)"))

	key = "tls-cert"
	BackupCmd.PersistentFlags().String(key, "cert.pem", cmdUtil.WrapString("PEM file with the certificate of the backup peer"))

	key = "tls-key"
	BackupCmd.PersistentFlags().String(key, "key.pem", cmdUtil.WrapString("PEM file with the key of the backup peer"))

	key = "tls-ca"
	BackupCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("PEM file with a CA certificate. If set, senders must present a certificate signed by it"))

	key = "log-level"
	BackupCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	endpoint, err := cmdUtil.JoinHostPort(viper.GetString("host"), viper.GetInt("port"))
	if err != nil {
		return err
	}

	backupCmdConfig.Endpoint = endpoint
	backupCmdConfig.TargetPath = viper.GetString("target")
	backupCmdConfig.PSK = viper.GetString("psk")
	backupCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	backupCmdConfig.MaxSizeBytes = viper.GetInt64("max-size")
	backupCmdConfig.TLS = common.TLSConf{
		CertFile: viper.GetString("tls-cert"),
		KeyFile:  viper.GetString("tls-key"),
		CAFile:   viper.GetString("tls-ca"),
	}
	backupCmdConfig.LogLevel = viper.GetString("log-level")

	return backupCmdConfig.Validate()
}

func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(backupCmdConfig.LogLevel); err != nil {
		return err
	}

	peer, err := replication.NewBackupPeer(backupCmdConfig)
	if err != nil {
		return err
	}
	if _, err := peer.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return peer.Serve(ctx)
}
