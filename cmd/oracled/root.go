package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GPTx-global/flightsurety-oracle/oracle/config"
	"github.com/GPTx-global/flightsurety-oracle/oracle/daemon"
	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
)

const (
	flagHome   = "home"
	envPrefix  = "ORACLED"
	flagStdout = "log-stdout"
)

func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "oracled",
		Short:         "Flight status oracle simulator for FlightSurety",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Load(v.GetString(flagHome)); err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			log.SetLevel(config.LogLevel())
			return nil
		},
	}

	rootCmd.PersistentFlags().String(flagHome, config.DefaultHome(),
		"directory holding config.toml (env "+envPrefix+"_HOME)")
	if err := v.BindPFlag(flagHome, rootCmd.PersistentFlags().Lookup(flagHome)); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		newStartCmd(v),
		newConfigCmd(),
		newAccountsCmd(),
	)

	return rootCmd
}

func newStartCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Register the oracle pool and answer flight status requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !v.GetBool(flagStdout) {
				logHome := config.LogDir()
				if logHome == "" {
					logHome = config.Home()
				}
				log.ResetLogger(logHome)
			}
			config.Print()

			ctx := cmd.Context()
			d, err := daemon.New(ctx)
			if err != nil {
				return errors.Wrap(err, "failed to create daemon")
			}
			defer d.Stop()

			if err := d.Start(); err != nil {
				return errors.Wrap(err, "failed to start daemon")
			}

			// Monitor returns nil once ctx is cancelled by a signal
			return d.Monitor()
		},
	}

	cmd.Flags().Bool(flagStdout, false, "keep logging to stdout instead of <home>/logs")
	if err := v.BindPFlag(flagStdout, cmd.Flags().Lookup(flagStdout)); err != nil {
		panic(err)
	}

	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Run: func(*cobra.Command, []string) {
			config.Print()
		},
	}
}

func newAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts derived from the configured mnemonic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if config.Mnemonic() == "" {
				return errors.New("accounts.mnemonic is not set; the node's accounts are used")
			}

			accounts, err := ledger.DeriveAccounts(config.Mnemonic(), config.AccountCount())
			if err != nil {
				return err
			}
			for i, a := range accounts {
				role := "oracle"
				switch {
				case i == 0:
					role = "owner"
				case i > config.PoolSize():
					role = "unused"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%3d %s %s\n", i, a.Hex(), role)
			}
			return nil
		},
	}
}
