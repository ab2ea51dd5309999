package main

import (
	"github.com/spf13/cobra"

	"hwbot/internal/app"
	"hwbot/internal/config"
)

type rootFlags struct {
	configPath string
	envFile    string
}

func (f *rootFlags) appOptions() app.Options {
	return app.Options{
		ConfigPath: f.configPath,
		EnvFile:    f.envFile,
		Version:    version,
	}
}

func (f *rootFlags) loadOptions() config.LoadOptions {
	return config.LoadOptions{Path: f.configPath, EnvFile: f.envFile}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	runCmd := newRunCommand(flags)
	rootCmd := &cobra.Command{
		Use:           "hwbot",
		Short:         "Homework review status notifier for Telegram",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runCmd.RunE,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Configuration file path (.json, .yaml, .toml)")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", config.DefaultEnvFile, "Dotenv file read below the process environment")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newOnceCommand(flags))
	rootCmd.AddCommand(newCheckConfigCommand(flags))

	return rootCmd
}
