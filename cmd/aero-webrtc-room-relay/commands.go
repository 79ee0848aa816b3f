package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aero-webrtc-room-relay",
		Short: "WebSocket signaling relay for WebRTC video rooms",
		// Flags belong to config.Load, which also reads the environment.
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE:               runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:                "serve [flags]",
			Short:              "Run the relay (default)",
			DisableFlagParsing: true,
			SilenceUsage:       true,
			RunE:               runServe,
		},
		newTokenCmd(),
		newVersionCmd(),
	)
	return root
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	return serve(cmd.Context(), cfg)
}

func newTokenCmd() *cobra.Command {
	var (
		secret  string
		subject string
		name    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 token for AUTH_MODE=jwt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or %s is required", config.EnvJWTSecret)
			}
			token, err := auth.IssueToken(secret, subject, name, ttl, time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv(config.EnvJWTSecret), "HS256 secret ("+config.EnvJWTSecret+")")
	cmd.Flags().StringVar(&subject, "subject", "dev", "sub claim")
	cmd.Flags().StringVar(&name, "name", "", "name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			commit, built := resolveBuildInfo(buildCommit, buildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "commit=%s built=%s\n", orUnknown(commit), orUnknown(built))
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
