package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/coeftune/internal/channel"
	"github.com/Iron-Ham/coeftune/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "coeftune",
	Short: "Coefficient tuning coordinator for a shooter firing solver",
	Long: `coeftune tunes the physics coefficients of a robot's firing solver one at a
time. It watches shots logged by the solver over a shared key-value store,
feeds hit/miss outcomes to an optimizer, and publishes updated coefficient
values back for the solver to use.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/coeftune/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// e.g. COEFTUNE_CHANNEL_ADDRESS for channel.address
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig returns the effective configuration and the file it came
// from, which is empty when only defaults and the environment apply.
func loadConfig() (*config.Config, string, error) {
	if path := viper.GetString("config"); path != "" {
		cfg, err := config.LoadFile(path)
		return cfg, path, err
	}
	cfg, err := config.Load()
	return cfg, viper.ConfigFileUsed(), err
}

// newStore opens the configured channel backend.
func newStore(cfg *config.Config) (channel.Store, error) {
	if cfg.Channel.Backend == "memory" {
		return channel.NewMemoryStore(), nil
	}
	return channel.NewRedisStore(cfg.Channel.ResolveAddress(), cfg.Channel.KeyPrefix)
}
