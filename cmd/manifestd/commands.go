package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/manifestd/internal/config"
	"github.com/danmuck/manifestd/internal/daemon"
	"github.com/danmuck/manifestd/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "cmd/manifestd/config.toml"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "manifestd",
		Short:         "Resolve manifests through cache, remote provider and static fallback",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to manifestd TOML config (defaults when empty)")

	root.AddCommand(
		newServeCmd(&configPath),
		newResolveCmd(&configPath),
		newConfigCmd(),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServiceConfig(*configPath)
			if err != nil {
				return err
			}
			observability.InitLogger(cfg.Name)
			if _, ok := os.LookupEnv(gin.EnvGinMode); !ok {
				gin.SetMode(gin.ReleaseMode)
			}

			svc, err := daemon.NewServiceWithConfig(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return svc.Run(ctx)
		},
	}
}

func newResolveCmd(configPath *string) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "resolve <scope>",
		Short: "Resolve one scope and print the document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServiceConfig(*configPath)
			if err != nil {
				return err
			}
			observability.InitLogger(cfg.Name)
			svc, err := daemon.NewServiceWithConfig(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			doc, err := svc.Resolver().Resolve(ctx, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "source=%s scope=%s\n", doc.Provenance, doc.Scope)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall resolution deadline (0 disables)")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate manifestd config files",
	}

	var (
		output string
		force  bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(output, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote config template to %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", defaultConfigPath, "output path for config template")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")

	var input string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Strictly validate a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(input); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Validated config at %s\n", input)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&input, "input", "i", defaultConfigPath, "config path to validate")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
