package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pressline/pressline/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a Pressline project",
	Long: `Initialize a Pressline project directory.

Creates:
  - pressline.yaml   Configuration file with defaults
  - data/            Database directory

Fill in the generator and publisher credentials before running
'pressline serve'. Values of the form ${VAR} are expanded from the
environment at load time, so secrets can stay out of the file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) > 0 {
		projectDir = args[0]
	}

	if err := os.MkdirAll(filepath.Join(projectDir, "data"), 0o755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}

	configPath := filepath.Join(projectDir, "pressline.yaml")
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	data, err := starterConfig()
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info().Str("file", configPath).Msg("Project initialized")
	fmt.Println("Next steps:")
	fmt.Println("  1. Set PRESSLINE_OPENAI_KEY and PRESSLINE_WP_PASSWORD in the environment")
	fmt.Println("  2. Adjust the publisher base_url to your site")
	fmt.Println("  3. Add a rule:  pressline rules add --owner you --topics \"your topic\" --days mon --at 09:00 --tz UTC")
	fmt.Println("  4. Start it:    pressline serve")
	return nil
}

// starterConfig renders the default configuration as YAML, with the
// secret fields pointing at environment variables.
func starterConfig() ([]byte, error) {
	defaults := config.Default()

	doc := map[string]any{
		"database": map[string]any{
			"path":     "data/pressline.db",
			"wal_mode": true,
		},
		"scheduler": map[string]any{
			"poll_interval":  defaults.Scheduler.PollInterval.String(),
			"claim_timeout":  defaults.Scheduler.ClaimTimeout.String(),
			"max_concurrent": defaults.Scheduler.MaxConcurrent,
		},
		"generator": map[string]any{
			"base_url":        defaults.Generator.BaseURL,
			"api_key":         "${PRESSLINE_OPENAI_KEY}",
			"model":           defaults.Generator.Model,
			"rate_per_minute": defaults.Generator.RatePerMinute,
		},
		"publisher": map[string]any{
			"base_url":     "https://your-site.example.com/wp-json",
			"username":     "pressline",
			"app_password": "${PRESSLINE_WP_PASSWORD}",
			"post_status":  defaults.Publisher.PostStatus,
		},
		"retention": map[string]any{
			"max_age":        defaults.Retention.MaxAge.String(),
			"prune_schedule": defaults.Retention.PruneSchedule,
			"timezone":       defaults.Retention.Timezone,
		},
		"metrics": map[string]any{
			"enabled": false,
			"addr":    defaults.Metrics.Addr,
		},
		"logging": map[string]any{
			"level":  "info",
			"format": "console",
		},
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	return data, nil
}
