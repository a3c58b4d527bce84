package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/parity-monitor/cmd/cli"
	"github.com/theblitlabs/parity-monitor/pkg/logger"
)

var (
	logMode    string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "parity-monitor",
	Short: "Parity Monitor",
	Long:  `Streams live CPU, memory and load statistics of this host to WebSocket clients`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch logMode {
		case "debug", "pretty", "info", "prod", "test":
			logger.InitWithMode(logger.LogMode(logMode))
		default:
			logger.InitWithMode(logger.LogModePretty)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunServer(configPath)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stats broadcast server",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunServer(configPath)
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Take one measurement and print it as a stats frame",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// stdout carries the frame
		logger.Init(logger.Config{Level: logger.LogLevelWarn, Pretty: true, Output: os.Stderr})
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.RunSnapshot(configPath, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "pretty", "Log mode: debug, pretty, info, prod, test")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "Path to the config file")
}

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(snapshotCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
