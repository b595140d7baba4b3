package main

import (
	"fmt"
	"strconv"
	"strings"

	"darkdrop/internal/drop"
	"darkdrop/internal/model"

	"github.com/spf13/cobra"
)

func formatQuota(quota int64) string {
	if quota == 0 {
		return "unlimited"
	}
	return strconv.FormatInt(quota, 10)
}

func printAccount(a *model.Account) {
	fmt.Printf("%s\t%s\t%s\t%s\tenc=%t\tused=%d\tquota=%s\n",
		a.ID, a.Name, a.Domain, a.Status, a.EncryptionEnabled, a.StorageUsed, formatQuota(a.StorageQuota))
}

// account command
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage tenant accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create ID",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		domain, _ := cmd.Flags().GetString("domain")
		quota, _ := cmd.Flags().GetInt64("quota")
		encrypted, _ := cmd.Flags().GetBool("encrypted")

		a, err := newApp("account")
		if err != nil {
			return err
		}
		defer a.Close()

		if encrypted && !a.EncryptionAvailable() {
			fmt.Println("Warning: no master key is configured; files will be stored in plaintext until one is set.")
		}
		account, err := a.Service().CreateAccount(cmd.Context(), drop.AccountRequest{
			ID:                args[0],
			Name:              name,
			Domain:            domain,
			StorageQuota:      quota,
			EncryptionEnabled: encrypted,
		})
		if err != nil {
			return err
		}
		printAccount(account)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("account")
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.Service().AllAccounts(cmd.Context())
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts.")
			return nil
		}
		for _, account := range accounts {
			printAccount(account)
		}
		return nil
	},
}

var accountEncryptionCmd = &cobra.Command{
	Use:       "encryption ID on|off",
	Short:     "Turn encryption at rest on or off for new uploads",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch strings.ToLower(args[1]) {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[1])
		}

		a, err := newApp("account")
		if err != nil {
			return err
		}
		defer a.Close()

		account, err := a.Service().SetAccountEncryption(cmd.Context(), args[0], enabled)
		if err != nil {
			return err
		}
		printAccount(account)
		return nil
	},
}

func accountStatusCmd(use, short string, status model.AccountStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp("account")
			if err != nil {
				return err
			}
			defer a.Close()

			account, err := a.Service().SetAccountStatus(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}
			printAccount(account)
			return nil
		},
	}
}

var accountQuotaCmd = &cobra.Command{
	Use:   "quota ID BYTES",
	Short: "Set the storage quota (0 for unlimited)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		quota, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid quota %q: %w", args[1], err)
		}

		a, err := newApp("account")
		if err != nil {
			return err
		}
		defer a.Close()

		account, err := a.Service().SetAccountQuota(cmd.Context(), args[0], quota)
		if err != nil {
			return err
		}
		printAccount(account)
		return nil
	},
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create EMAIL",
	Short: "Create a user (prompts for the password)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		a, err := newApp("user")
		if err != nil {
			return err
		}
		defer a.Close()

		password, err := readNewSecret("password")
		if err != nil {
			return err
		}
		user, err := a.Service().Register(cmd.Context(), args[0], password, name)
		if err != nil {
			return err
		}
		fmt.Printf("Created user %s (%s)\n", user.Email, user.ID)
		return nil
	},
}

// agent command
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage agent API keys",
}

var agentCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an agent and print its API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("agent")
		if err != nil {
			return err
		}
		defer a.Close()

		agent, err := a.Service().CreateAgent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Agent ID: %s\n", agent.ID)
		fmt.Printf("API Key:  %s\n", agent.APIKey)
		fmt.Println("The API key is not shown again.")
		return nil
	},
}

var agentRevokeCmd = &cobra.Command{
	Use:   "revoke ID",
	Short: "Revoke an agent's API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("agent")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().RevokeAgent(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Revoked agent %s\n", args[0])
		return nil
	},
}

// permission command
var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Manage account roles",
}

var permissionGrantCmd = &cobra.Command{
	Use:   "grant ACCOUNT ROLE",
	Short: "Grant a user or agent a role (read, write or admin) on an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("user")
		agentID, _ := cmd.Flags().GetString("agent")
		if (email == "") == (agentID == "") {
			return fmt.Errorf("exactly one of --user or --agent is required")
		}
		role, err := model.ParseRole(args[1])
		if err != nil {
			return err
		}

		a, err := newApp("permission")
		if err != nil {
			return err
		}
		defer a.Close()

		identity := model.AgentIdentity(agentID, "")
		if email != "" {
			user, err := a.Service().UserByEmail(cmd.Context(), email)
			if err != nil {
				return err
			}
			identity = model.UserIdentity(user.ID, user.Name)
		}

		p, err := a.Service().GrantPermission(cmd.Context(), args[0], identity, role)
		if err != nil {
			return err
		}
		fmt.Printf("Granted %s on %s to %s\n", p.Role, p.AccountID, p.Identity)
		return nil
	},
}

// session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage login sessions",
}

var sessionSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("session")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Service().SweepSessions(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d expired session(s)\n", n)
		return nil
	},
}

func init() {
	accountCreateCmd.Flags().String("name", "", "Display name (required)")
	accountCreateCmd.Flags().String("domain", "", "Domain")
	accountCreateCmd.Flags().Int64("quota", 0, "Storage quota in bytes (0 for unlimited)")
	accountCreateCmd.Flags().Bool("encrypted", false, "Encrypt files at rest")

	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountEncryptionCmd)
	accountCmd.AddCommand(accountStatusCmd("suspend", "Suspend an account", model.AccountSuspended))
	accountCmd.AddCommand(accountStatusCmd("activate", "Reactivate a suspended account", model.AccountActive))
	accountCmd.AddCommand(accountQuotaCmd)

	userCreateCmd.Flags().String("name", "", "Display name (required)")
	userCmd.AddCommand(userCreateCmd)

	agentCmd.AddCommand(agentCreateCmd)
	agentCmd.AddCommand(agentRevokeCmd)

	permissionGrantCmd.Flags().String("user", "", "User email")
	permissionGrantCmd.Flags().String("agent", "", "Agent ID")
	permissionCmd.AddCommand(permissionGrantCmd)

	sessionCmd.AddCommand(sessionSweepCmd)

	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(permissionCmd)
	rootCmd.AddCommand(sessionCmd)
}
