package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/volunteermatching/volops/pkg/common"
	"github.com/volunteermatching/volops/pkg/types"
)

// Build information (injected at compile time via ldflags)
var Version = "dev"

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "volops",
	Short: "Volunteer opportunities API",
	Long: lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Render("volops") + ` - Volunteer opportunities API

Serve, migrate and reindex the opportunities and frequencies service.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		SetJSONOutput(jsonOutput)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("  %s version %s\n", BrandStyle.Render("volops"), Version))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML or JSON), overrides CONFIG_PATH")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(tokenCmd)
}

// Execute runs the CLI
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintError(err)
	}
	return err
}

// loadConfig layers the --config file over the environment configuration
// and sets up logging from the result
func loadConfig() (types.AppConfig, error) {
	configManager, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		return types.AppConfig{}, err
	}

	if configPath != "" {
		if err := configManager.LoadFile(configPath); err != nil {
			return types.AppConfig{}, err
		}
	}

	config := configManager.GetConfig()
	setupLogging(config)
	return config, nil
}

func setupLogging(config types.AppConfig) {
	level := zerolog.InfoLevel
	if config.DebugMode {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Logger.Level(level)

	if config.PrettyLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
