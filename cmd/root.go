// Package cmd contains the CLI setup and commands exposed to the user
package cmd

import (
	stdlog "log"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"liveroom/config"
)

var ConfigFile string

var rootCmd = &cobra.Command{
	Use:   "liveroom",
	Short: "Live-room chat relay and terminal client",
}

// Execute runs the root command. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		stdlog.Fatal(err.Error())
	}
}

func init() {
	// deferring this allows the user to override the config path with a flag
	cobra.OnInitialize(func() {
		config.LoadDotEnv()
		if err := config.InitConfig(ConfigFile); err != nil {
			stdlog.Fatal(err)
		}
	})

	rootCmd.PersistentFlags().StringVar(&ConfigFile, "config", config.DefaultConfigFile(), "config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// loadConfig decodes the configuration and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)
	return cfg, nil
}
