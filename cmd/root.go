package cmd

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	configs "github.com/tablecache/tablecache/configs"
	"github.com/tablecache/tablecache/internal/env"
	customLogger "github.com/tablecache/tablecache/internal/log"
)

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "tablecache",
		Short: "Memcache style cache over table storage",
		Long:  "tablecache stores memcache style key/value pairs as rows of a table store and serves them over HTTP or from the command line.",
		Run: func(cmd *cobra.Command, args []string) {
			RunApi(cmd, args)
		},
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level to use for the application")
	rootCmd.PersistentFlags().Bool("log-prettify", false, "Whether to prettify the log output")
	rootCmd.PersistentFlags().String("api-host", "", "Host the API server listens on")
	rootCmd.PersistentFlags().Int("api-port", 3000, "Port the API server listens on")
	rootCmd.PersistentFlags().String("table-name", "cache", "Table holding the cache rows")
	rootCmd.PersistentFlags().Int("table-requestTimeout", 0, "Milliseconds allowed per storage request, 0 disables the deadline")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.prettify", rootCmd.PersistentFlags().Lookup("log-prettify"))
	viper.BindPFlag("api.host", rootCmd.PersistentFlags().Lookup("api-host"))
	viper.BindPFlag("api.port", rootCmd.PersistentFlags().Lookup("api-port"))
	viper.BindPFlag("table.name", rootCmd.PersistentFlags().Lookup("table-name"))
	viper.BindPFlag("table.requestTimeout", rootCmd.PersistentFlags().Lookup("table-requestTimeout"))
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(replaceCmd)
	rootCmd.AddCommand(deleteCmd)
}

func initConfig() {
	if err := env.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load .env file")
	}
	if err := configs.LoadConfig(cfgFile); err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	customLogger.InitLogger()
}
