package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dmke/unispi/internal/config"
	"github.com/dmke/unispi/internal/log"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "inform-inspect",
	Short: "Decode, craft and relay UniFi inform packets",
	Long: `inform-inspect decodes the binary "inform" packets exchanged between
UniFi devices and their controller (AES-CBC/AES-GCM, zlib/Snappy, JSON).

It can decode captured packets, build packets from JSON, and run as a
transparent relay in front of a controller, logging every decoded exchange.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return err
		}
		if err = log.Init(cfg.Log); err != nil {
			return fmt.Errorf("cannot configure logging: %w", err)
		}
		logrus.WithField("config", configFile).Debug("configuration loaded")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and INFORM_* env vars apply without one)")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(keysCmd)
}
