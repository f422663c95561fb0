package main

import (
	"errors"
	"fmt"

	"github.com/opd-ai/roomcall/config"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "roomcall.toml"

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the media settings file",
	}
	cmd.AddCommand(newConfigInitCmd(opts), newConfigShowCmd(opts))
	return cmd
}

func configPath(opts *globalOptions) string {
	if opts.configPath != "" {
		return opts.configPath
	}
	return defaultConfigPath
}

func newConfigInitCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default media settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath(opts)
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}
}

func newConfigShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective media settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := config.NewLoader(configPath(opts), nil).Load()
			if err != nil {
				var verr *config.ValidationError
				if errors.As(err, &verr) {
					return fmt.Errorf("%s: field %s is invalid", configPath(opts), verr.Field)
				}
				return err
			}
			data, err := config.Marshal(snap)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
