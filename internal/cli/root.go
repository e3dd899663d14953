package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pressline",
	Short: "Recurring content publishing for your CMS",
	Long: `Pressline turns weekly publishing rules into posts.

Each rule names a set of topics, the weekdays to publish on, a local
time of day, and a timezone. At every firing, Pressline generates one
post per topic and pushes it to your CMS, then arms the rule for its
next occurrence. Failures defer to the next scheduled slot rather than
retrying immediately.

Start the engine:
  pressline serve

Manage rules:
  pressline rules add --owner alice --topics "espresso,pour over" --days mon,thu --at 09:00 --tz Europe/Berlin
  pressline rules list`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./pressline.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("pressline")
	}

	viper.SetEnvPrefix("PRESSLINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			log.Debug().Str("file", viper.ConfigFileUsed()).Msg("Using config file")
		}
	}
}

// setupLogging configures zerolog for interactive use. The serve
// command reconfigures it from the loaded config.
func setupLogging() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}
