package cli

import (
	"github.com/spf13/cobra"

	"github.com/volunteermatching/volops/pkg/gateway"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and seed reference data",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}

		gw, err := gateway.NewGateway(config)
		if err != nil {
			return err
		}
		defer gw.Close()

		if err := gw.Prepare(); err != nil {
			return err
		}

		if PrintJSON(map[string]any{"ok": true}) {
			return nil
		}
		PrintSuccess("Migrations applied")
		return nil
	},
}
