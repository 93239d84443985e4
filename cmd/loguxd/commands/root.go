// Package commands implements the loguxd reference CLI: a serve
// command that runs a ServerNode over websockets (spec §4.4, §6),
// and a connect command that runs a ClientNode against one. Grounded
// on the cobra+viper root/subcommand layout the pack's
// mosaicnetworks-babble repo uses for its own node binaries — the
// teacher itself ships a readline REPL instead of a cobra CLI.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CanRau/logux-core/utils"
)

var logger utils.Logger

var rootCmd = &cobra.Command{
	Use:   "loguxd",
	Short: "Reference peer for the logux-core synchronization protocol",
}

func init() {
	rootCmd.PersistentFlags().String("log", "info", "debug, info, warn or error")
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConnectCmd())
}

// Execute runs the CLI; callers only need main.go's one-liner.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bindAndLoadLogger(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		return err
	}
	if rootCmd != cmd {
		if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
			return err
		}
	}
	logger = utils.NewDefaultLogger(parseLevel(viper.GetString("log")))
	return nil
}

// resolveNodeId returns flagValue unless it's empty, in which case it
// mints a short random id so two default-flag instances on the same
// machine don't collide under the same node-id.
func resolveNodeId(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return uuid.New().String()[:8]
}

func parseLevel(l string) slog.Level {
	switch l {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
