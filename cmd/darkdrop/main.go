package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"darkdrop/internal/app"
	"darkdrop/internal/config"
	"darkdrop/internal/database"
	"darkdrop/internal/database/migrations"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig reads the config file named by the defaults.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a DarkDropApp. The caller must defer app.Close().
// component identifies the CLI command being run (e.g. "serve", "account").
func newApp(component string) (*app.DarkDropApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewDarkDropApp(cfg, component)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readSecret prompts on stderr and reads a line from stdin without echo
// when stdin is a terminal.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readNewSecret prompts twice and requires both entries to match.
func readNewSecret(what string) (string, error) {
	first, err := readSecret("Enter " + what + ": ")
	if err != nil {
		return "", err
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return first, nil
	}
	second, err := readSecret("Confirm " + what + ": ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("%s entries do not match", what)
	}
	return first, nil
}

var rootCmd = &cobra.Command{
	Use:           "darkdrop",
	Short:         "Multi-tenant file storage service",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		fmt.Println("Next: run 'darkdrop db migrate', then set DARKDROP_MASTER_KEY to enable encryption at rest.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		masterKey := "not set"
		if cfg.Encryption.MasterKey != "" {
			masterKey = "set in config"
		}
		if os.Getenv("DARKDROP_MASTER_KEY") != "" {
			masterKey = "set in environment"
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Log Level:   %s\n", cfg.LogLevel)
		fmt.Printf("Listen:      %s\n", cfg.Server.Listen)
		fmt.Printf("Public URL:  %s\n", cfg.Server.PublicBaseURL)
		fmt.Printf("Storage:     %s %s\n", cfg.Storage.Type, cfg.Storage.Root)
		fmt.Printf("Database:    %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Master Key:  %s\n", masterKey)
		fmt.Printf("Session TTL: %s\n", cfg.Sessions.TTL)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:       %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the metadata database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if err := database.MigrateFromConfig(cfg.Database); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		path, err := database.PathFromConfig(cfg.Database)
		if err != nil {
			return err
		}
		db, err := database.OpenConnection(path)
		if err != nil {
			return err
		}
		defer db.Close()

		st, err := migrations.GetStatus(db)
		if err != nil {
			return err
		}
		fmt.Printf("Database: %s\n", path)
		fmt.Printf("Version:  %d (latest %d)\n", st.Current, st.Latest)
		switch {
		case st.Dirty:
			fmt.Println("Status:   dirty (a migration failed)")
		case st.UpToDate():
			fmt.Println("Status:   up to date")
		default:
			fmt.Println("Status:   needs migration")
		}
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Seal a database snapshot and upload it to a vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultName, _ := cmd.Flags().GetString("vault")

		a, err := newApp("backup")
		if err != nil {
			return err
		}
		defer a.Close()

		name, err := a.BackupDatabase(cmd.Context(), vaultName)
		if err != nil {
			return err
		}
		fmt.Printf("Uploaded snapshot %s\n", name)
		return nil
	},
}

var dbSnapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List database snapshots in a vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultName, _ := cmd.Flags().GetString("vault")

		a, err := newApp("backup")
		if err != nil {
			return err
		}
		defer a.Close()

		names, err := a.ListSnapshots(cmd.Context(), vaultName)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

var dbRestoreCmd = &cobra.Command{
	Use:   "restore SNAPSHOT DEST",
	Short: "Download and decrypt a snapshot to a new database file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultName, _ := cmd.Flags().GetString("vault")

		a, err := newApp("restore")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readSecret("Backup passphrase: ")
		if err != nil {
			return err
		}
		if err := a.RestoreDatabase(cmd.Context(), vaultName, args[0], passphrase, args[1]); err != nil {
			return err
		}
		fmt.Printf("Restored %s to %s\n", args[0], args[1])
		fmt.Println("Stop the server and move the file into the data dir to use it.")
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage the snapshot backup keys",
}

var backupKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the key pair that seals database snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("backup")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readNewSecret("backup passphrase")
		if err != nil {
			return err
		}
		if err := a.Sealer().Setup(passphrase); err != nil {
			return err
		}
		fmt.Printf("Backup keys written to %s and %s\n", a.Config().Backup.RecipientPath, a.Config().Backup.IdentityPath)
		fmt.Println("Keep the passphrase safe: it is required to restore any snapshot.")
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbBackupCmd)
	dbCmd.AddCommand(dbSnapshotsCmd)
	dbCmd.AddCommand(dbRestoreCmd)
	for _, c := range []*cobra.Command{dbBackupCmd, dbSnapshotsCmd, dbRestoreCmd} {
		c.Flags().String("vault", "", "Vault name (default: first configured vault)")
	}

	// backup subcommands
	backupCmd.AddCommand(backupKeygenCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(backupCmd)
}
