package admin

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dInv/cmd/util"
	"github.com/ValentinKolb/dInv/lib/auth"
	"github.com/ValentinKolb/dInv/lib/store/sqlstore"
	"github.com/ValentinKolb/dInv/rpc/transport/secure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// InitDBCmd creates the database file of the server and optionally adds a user
	InitDBCmd = &cobra.Command{
		Use:   "init-db",
		Short: "Create the inventory database and add users",
		Long: `Create the items and users tables in the database file if they do not exist.

With --user the user is added to the database (or its password is replaced). The password is stored as a bcrypt hash.`,
		Args: cobra.NoArgs,
		RunE: initDB,
	}

	// CertCmd writes a self-signed certificate for testing
	CertCmd = &cobra.Command{
		Use:   "cert",
		Short: "Create a self-signed certificate for testing",
		Long:  "Write a self-signed certificate (cert.pem) and key (key.pem) into a directory. The certificate is its own CA, so pass cert.pem as CA file to clients and backup senders.",
		Args:  cobra.NoArgs,
		RunE:  writeCert,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	key := "db"
	InitDBCmd.Flags().String(key, "items.db", util.WrapString("The SQLite database file to create"))
	key = "user"
	InitDBCmd.Flags().String(key, "", util.WrapString("Add this user to the database"))
	key = "password"
	InitDBCmd.Flags().String(key, "", util.WrapString("The password of the user (better use DINV_PASSWORD)"))
	key = "cost"
	InitDBCmd.Flags().Int(key, 0, util.WrapString("The bcrypt cost of the password hash (0 = default)"))

	key = "dir"
	CertCmd.Flags().String(key, ".", util.WrapString("The directory cert.pem and key.pem are written to"))
	key = "hosts"
	CertCmd.Flags().String(key, "localhost,127.0.0.1", util.WrapString("Comma separated host names and IPs the certificate is valid for"))
	key = "valid-for"
	CertCmd.Flags().Duration(key, 365*24*time.Hour, util.WrapString("How long the certificate is valid"))
}

func initDB(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	path := viper.GetString("db")
	if err := sqlstore.CreateSchema(path); err != nil {
		return err
	}
	fmt.Printf("database %s is ready\n", path)

	user := viper.GetString("user")
	if user == "" {
		return nil
	}
	password := viper.GetString("password")
	if password == "" {
		return fmt.Errorf("a password is required to add user %q", user)
	}

	hash, err := auth.HashPassword(password, viper.GetInt("cost"))
	if err != nil {
		return err
	}
	if err := sqlstore.AddUser(path, user, hash); err != nil {
		return err
	}
	fmt.Printf("user %q added\n", user)
	return nil
}

func writeCert(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var hosts []string
	for _, h := range strings.Split(viper.GetString("hosts"), ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	if len(hosts) == 0 {
		return fmt.Errorf("at least one host is required")
	}

	conf, err := secure.WriteSelfSigned(viper.GetString("dir"), viper.GetDuration("valid-for"), hosts...)
	if err != nil {
		return err
	}
	fmt.Printf("certificate: %s\nkey: %s\n", conf.CertFile, conf.KeyFile)
	return nil
}
