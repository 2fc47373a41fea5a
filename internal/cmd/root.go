// Package cmd implements the taskscope command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/taskscope/internal/config"
	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/tui/styles"
)

var rootCmd = &cobra.Command{
	Use:   "taskscope",
	Short: "Search and watch tasks from a task service",
	Long: `Taskscope searches a task service with debounced, cached queries and
keeps results current from the service's push channel.

Use "taskscope watch" for the interactive view, "taskscope search" for a
one-shot query, and "taskscope transition" to move a task to a new status.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// reportError prints err labelled by its severity.
func reportError(w io.Writer, err error) {
	label := styles.Error.Render("Error:")
	if errors.GetSeverity(err) < errors.SeverityError {
		label = styles.Warning.Render("Warning:")
	}
	fmt.Fprintln(w, label, err)
	if errors.IsRetryable(err) {
		fmt.Fprintln(w, styles.Muted.Render("The service may be temporarily unavailable; try again."))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/taskscope/config.yaml)")
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
	viper.SetEnvPrefix("TASKSCOPE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., TASKSCOPE_API_BASE_URL for api.base_url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
