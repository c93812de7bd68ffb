// Package overwatch holds the command line interface of the overwatch
// service.
package overwatch

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Orlik-B/NVR-surveillance/internal/config"
)

// BuildInfo is stamped at build time through -ldflags
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

var (
	cfgFile   string
	buildInfo = BuildInfo{Version: "dev", BuildTime: "unknown", GitCommit: "unknown"}

	rootCmd = &cobra.Command{
		Use:   "overwatch",
		Short: "Watch camera streams for people and send alerts",
		Long: `overwatch reads a set of network camera streams for a fixed amount of
time, runs object detection on the most recent frame of each camera and
sends an annotated picture to Telegram once a detection was confirmed on
enough frames in a row.

Running without a subcommand is the same as "overwatch run".`,
		SilenceUsage: true,
		RunE:         runOverwatch,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "web server port (overrides web.port)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("web_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// Execute runs the root command
func Execute(info BuildInfo) {
	if info.Version != "" {
		buildInfo = info
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies command line
// overrides on top of it
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	applyFlagOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config) {
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			cfg.Log.Level = level
		}
	}
	if viper.IsSet("web_port") {
		if port := viper.GetInt("web_port"); port > 0 {
			cfg.Web.Port = port
		}
	}
}
