package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. DINV_TIMEOUT)
	EnvPrefix = "dinv"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read DINV_ environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Legacy config file
// --------------------------------------------------------------------------

// LegacyKeys maps the keys of the KEY=VALUE config file to flags
var LegacyKeys = map[string]string{
	"PORT":           "port",
	"BACKUP_SERVER":  "backup-host",
	"BACKUP_PORT":    "backup-port",
	"BACKUP_PSK":     "backup-psk",
	"BACKUP_CA_FILE": "backup-ca",
	"DATABASE":       "db",
	"INTERVAL":       "interval",
	"CERT_FILE":      "tls-cert",
	"KEY_FILE":       "tls-key",
	"CA_FILE":        "tls-ca",
	"MAX_CLIENTS":    "max-sessions",
	"TIMEOUT":        "timeout",
}

// integer valued legacy keys
var legacyIntKeys = map[string]bool{
	"PORT":        true,
	"BACKUP_PORT": true,
	"MAX_CLIENTS": true,
	"TIMEOUT":     true,
}

// ReadLegacyConfig reads a KEY=VALUE config file and returns the flag values it sets.
// Unknown keys are ignored, malformed values are an error.
func ReadLegacyConfig(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	flags := make(map[string]string, len(values))
	for key, value := range values {
		flag, ok := LegacyKeys[key]
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if legacyIntKeys[key] {
			if _, err := strconv.Atoi(value); err != nil {
				return nil, fmt.Errorf("config file %s: %s must be a number, got %q", path, key, value)
			}
		}
		if key == "INTERVAL" {
			if _, err := common.ParseInterval(value); err != nil {
				return nil, fmt.Errorf("config file %s: %w", path, err)
			}
		}
		flags[flag] = value
	}
	return flags, nil
}

// ApplyLegacyConfig reads the config file and sets its values in viper.
// Values of the file override flags and environment variables.
func ApplyLegacyConfig(path string) error {
	flags, err := ReadLegacyConfig(path)
	if err != nil {
		return err
	}
	for flag, value := range flags {
		viper.Set(flag, value)
	}
	return nil
}

// --------------------------------------------------------------------------
// Shared flags
// --------------------------------------------------------------------------

// SetupClientFlags adds the connection flags of the inventory client to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, "localhost:4466", WrapString("The address of the inventory server"))

	key = "user"
	cmd.PersistentFlags().String(key, "", WrapString("The username to log in with"))

	key = "password"
	cmd.PersistentFlags().String(key, "", WrapString("The password to log in with (better use DINV_PASSWORD)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "ca"
	cmd.PersistentFlags().String(key, "", WrapString("PEM file with the CA certificate used to verify the server (default: system roots)"))

	key = "cert"
	cmd.PersistentFlags().String(key, "", WrapString("PEM file with a client certificate, if the server requires one"))

	key = "key"
	cmd.PersistentFlags().String(key, "", WrapString("PEM file with the key of the client certificate"))

	key = "server-name"
	cmd.PersistentFlags().String(key, "", WrapString("Overrides the host name the server certificate is checked against"))

	key = "insecure"
	cmd.PersistentFlags().Bool(key, false, WrapString("Do not verify the server certificate (testing only)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Endpoint:      viper.GetString("endpoint"),
		Username:      viper.GetString("user"),
		Password:      viper.GetString("password"),
		TimeoutSecond: viper.GetInt("timeout"),
		TLS: common.TLSConf{
			CAFile:             viper.GetString("ca"),
			CertFile:           viper.GetString("cert"),
			KeyFile:            viper.GetString("key"),
			ServerName:         viper.GetString("server-name"),
			InsecureSkipVerify: viper.GetBool("insecure"),
		},
		Socket: common.DefaultSocketConf(),
	}
}

// JoinHostPort combines a host flag and a port flag into an endpoint
func JoinHostPort(host string, port int) (string, error) {
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid port %d", port)
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}
