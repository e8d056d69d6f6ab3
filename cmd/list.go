// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/otgw/pkg/opentherm"
)

var itemsCmd = &cobra.Command{
	Use:   "items [ID...]",
	Short: "List the decoded OpenTherm data items",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := opentherm.DataItemIDs()
		if len(args) > 0 {
			ids = ids[:0]
			for _, arg := range args {
				var id uint8
				if _, err := fmt.Sscanf(arg, "%d", &id); err != nil {
					return fmt.Errorf("invalid data-ID %q", arg)
				}
				if _, ok := opentherm.LookupDataItems(id); !ok {
					return fmt.Errorf("data-ID %d is not documented", id)
				}
				ids = append(ids, id)
			}
		}
		for _, id := range ids {
			items, _ := opentherm.LookupDataItems(id)
			for _, item := range items {
				fmt.Fprintln(cmd.OutOrStdout(), opentherm.FormatDataItem(item))
			}
		}
		return nil
	},
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the gateway commands and their allowed values",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, c := range opentherm.Commands() {
			fmt.Fprintln(cmd.OutOrStdout(), opentherm.FormatCommand(c))
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(itemsCmd, commandsCmd, configCmd)
}
