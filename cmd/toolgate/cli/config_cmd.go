package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/toolgate/toolgate/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage toolgate configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default toolgate.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVar(&path, "path", "toolgate.yaml", "Where to write the config file")

	return cmd
}

func runConfigInit(w io.Writer, path string, force bool) error {
	if force {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove existing config: %w", err)
		}
	} else if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(w, "Created %s\n", path)
	fmt.Fprintln(w, "Edit the file if needed, then run 'toolgate serve'.")
	return nil
}

// ---------- config show ----------

// secretSettings are masked by config show.
var secretSettings = map[string]bool{
	"auth.default_password": true,
	"storage.dsn":           true,
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	return cmd
}

func runConfigShow(w io.Writer) error {
	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Fprintf(w, "# Config file: %s\n", configFile)
	} else {
		fmt.Fprintln(w, "# Config file: (none found, using defaults)")
	}
	fmt.Fprintf(w, "# Data dir:    %s\n", resolveDataDir())

	out, err := yaml.Marshal(effectiveSettings())
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// effectiveSettings returns the nested viper settings with secrets masked.
func effectiveSettings() map[string]interface{} {
	settings := map[string]interface{}{}
	for key, def := range config.DefaultYAMLConfig().Settings() {
		var val interface{}
		switch def.(type) {
		case int:
			val = viper.GetInt(key)
		case bool:
			val = viper.GetBool(key)
		case []string:
			val = viper.GetStringSlice(key)
		default:
			val = viper.GetString(key)
		}
		if secretSettings[key] {
			if s, _ := val.(string); s != "" {
				val = "********"
			}
		}
		setNested(settings, key, val)
	}
	return settings
}

// setNested stores val under a dotted key such as "auth.session_ttl".
func setNested(m map[string]interface{}, key string, val interface{}) {
	for i := 0; i < len(key); i++ {
		if key[i] != '.' {
			continue
		}
		head, rest := key[:i], key[i+1:]
		sub, ok := m[head].(map[string]interface{})
		if !ok {
			sub = map[string]interface{}{}
			m[head] = sub
		}
		setNested(sub, rest, val)
		return
	}
	m[key] = val
}
