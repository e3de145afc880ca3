package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BioHazard786/Duet/internal/config"
	"github.com/BioHazard786/Duet/internal/ui"
	"github.com/BioHazard786/Duet/internal/version"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "duet",
	Short: "Two-party WebRTC calls with a tiny signaling relay",
	Long: `Duet pairs exactly two people in a room and connects them over WebRTC.

Run "duet serve" to host the signaling relay, then "duet join" on both ends:
the first participant creates the room, the second joins it with the same key.
Media flows peer to peer; the relay only forwards SDP, ICE candidates and chat.`,
	Version: version.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, config.KeyConfig, os.Getenv("DUET_CONFIG"), "config file (yaml, toml or json)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

// loadViper resolves flags of cmd over env, the config file and defaults.
func loadViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := config.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := config.ReadFile(v, cfgFile); err != nil {
		return nil, err
	}
	return v, nil
}
