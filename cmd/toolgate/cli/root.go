package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toolgate/toolgate/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, reported by serve and the OpenAPI document
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolgate",
		Short: "Authenticated MCP tool server",
		Long: `toolgate: an MCP tool server behind a single admin account and revocable API tokens.

The admin signs in to the admin API with a session cookie and issues bearer
tokens; MCP clients present a token to reach the tools at /mcp.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./toolgate.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for secrets and the request log (default: ~/.toolgate)")

	cobra.OnInitialize(initConfig)

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	for k, v := range config.DefaultYAMLConfig().Settings() {
		viper.SetDefault(k, v)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("toolgate")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.toolgate")
	}

	viper.SetEnvPrefix("TOOLGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
