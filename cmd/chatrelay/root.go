// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/chatrelay/internal/config"
	"github.com/sigil-dev/chatrelay/internal/secrets"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// secretStoreFactory creates the secrets.Store used for keyring:// references
// and the secret command. Tests substitute an in-memory store.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// NewRootCmd creates the root chatrelay command with all subcommands
// registered. Each root owns its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "chatrelay",
		Short:         "chatrelay relays chat messages to a language model",
		Long:          "chatrelay connects a Telegram bot to a completion service and keeps one conversation per chat.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd, v)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(v),
		newAskCmd(v),
		newChatCmd(v),
		newDoctorCmd(v),
		newSecretCmd(),
		newConfigCmd(v),
		newVersionCmd(),
	)

	return root
}

// initViper sets up v with defaults, env bindings, flag bindings, and an
// optional config file so the standard precedence (flag > env > file >
// defaults) is handled uniformly. keyring:// values are resolved last.
func initViper(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Root().PersistentFlags()

	envFile, _ := flags.GetString("env-file")
	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
	}

	if err := v.BindPFlag("verbose", flags.Lookup("verbose")); err != nil {
		return relayerr.Errorf(relayerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}
	setupLogging(cmd.ErrOrStderr(), v.GetBool("verbose"))

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := flags.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted so viper never matches the bare
		// ./chatrelay binary as a config file.
		v.SetConfigName("chatrelay")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/chatrelay")
		v.AddConfigPath("/etc/chatrelay")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	config.WarnInsecurePermissions(v.ConfigFileUsed())

	if n := secrets.ResolveViperSecrets(v, secretStoreFactory()); n > 0 {
		slog.Debug("resolved keyring references", "count", n)
	}

	return nil
}

// setupLogging installs a text handler on w, at Debug when verbose.
func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
