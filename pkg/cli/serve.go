package cli

import (
	"github.com/spf13/cobra"

	"github.com/volunteermatching/volops/pkg/gateway"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  `Run migrations, seed reference data and serve the API until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort > 0 {
			config.Gateway.HTTP.Port = servePort
		}

		gw, err := gateway.NewGateway(config)
		if err != nil {
			return err
		}

		return gw.Start()
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port, overrides gateway.http.port")
}
