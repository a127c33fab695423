package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dmke/unispi/internal/keystore"
)

var keysFile string

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect the key file",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the devices with a known key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := keystore.Open(cfg.KeysFile, logrus.StandardLogger())
		if err != nil {
			return err
		}
		for _, mac := range store.MACs() {
			key, _ := store.ResolveKey(context.Background(), mac)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", mac, key)
		}
		return nil
	},
}

func init() {
	keysCmd.PersistentFlags().StringVar(&keysFile, "keys-file", "", "key file (overrides config)")
	keysCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if keysFile != "" {
			cfg.KeysFile = keysFile
		}
		return nil
	}
	keysCmd.AddCommand(keysListCmd)
}
