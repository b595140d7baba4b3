package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"darkdrop/internal/httpapi"
	"darkdrop/internal/tools"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("serve")
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := a.Config()
		addr, _ := cmd.Flags().GetString("listen")
		if addr == "" {
			addr = cfg.Server.Listen
		}
		if !a.EncryptionAvailable() {
			a.Logger().Warn("encryption at rest is unavailable; uploads to encrypted accounts are stored in plaintext")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		waitSweeper := a.StartSessionSweeper(ctx)

		server := httpapi.NewServer(a.Service(), a.SlogLogger())
		a.Logger().Info("listening", "addr", addr, "version", version)
		err = server.Run(ctx, addr, cfg.Server.ShutdownTimeout.Duration)
		stop()
		waitSweeper()
		return err
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the agent tool protocol on stdin/stdout",
	Long: "Serve the agent tool protocol on stdin/stdout.\n\n" +
		"The agent API key is read from " + tools.APIKeyEnv + ". " +
		tools.AccountEnv + " sets the account used when a tool call names none.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("mcp")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server, err := tools.NewServer(ctx, a.Service(), os.Getenv(tools.APIKeyEnv), tools.Options{
			DefaultAccount: os.Getenv(tools.AccountEnv),
			Version:        version,
		}, a.Logger())
		if err != nil {
			return fmt.Errorf("starting tool server: %w", err)
		}
		return server.Serve(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (overrides server.listen)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}
