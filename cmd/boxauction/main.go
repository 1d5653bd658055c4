package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloudx-io/boxauction/config"
	"github.com/cloudx-io/boxauction/logging"
)

// errValidationFailed marks a validate run that completed but found problems.
var errValidationFailed = errors.New("validation failed")

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "boxauction",
	Short:         "Box-token auction bid settlement engine.",
	Long:          "Sells fixed supplies of box tokens for settlement tokens, one unit per accepted bid.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "boxauction.toml", "path to the TOML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errValidationFailed) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

// loadConfig reads the config file and builds its logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
