package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/volunteermatching/volops/pkg/gateway"
)

var reindexDrainOnly bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the store",
	Long: `Refresh every opportunity's cached partner fields, clear the search index
and index every opportunity again. With --drain, only replay operations
waiting in the index outbox.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		gw, err := gateway.NewGateway(config)
		if err != nil {
			return err
		}
		defer gw.Close()

		if reindexDrainOnly {
			if !outputJSON {
				PrintInfo("Replaying queued index operations")
			}
			n, err := gw.DrainOutbox(ctx)
			if err != nil {
				return err
			}
			if PrintJSON(map[string]any{"replayed": n}) {
				return nil
			}
			if n == 0 {
				PrintWarning("The index outbox was empty, nothing replayed")
				return nil
			}
			PrintSuccess(fmt.Sprintf("Replayed %d queued index operations", n))
			return nil
		}

		if config.IsLocalMode() && !outputJSON {
			PrintWarning("Local mode keeps the store in memory, so only seeded records are indexed")
		}
		if !outputJSON {
			PrintInfo(fmt.Sprintf("Rebuilding the %s index", config.Index.Backend))
		}

		stats, err := gw.Rebuilder().Rebuild(ctx)
		if err != nil {
			return err
		}

		if PrintJSON(map[string]any{
			"refreshed":   stats.Refreshed,
			"indexed":     stats.Indexed,
			"duration_ms": stats.Duration.Milliseconds(),
		}) {
			return nil
		}

		PrintSuccess("Index rebuilt")
		PrintNewline()
		PrintKeyValue("Indexed", fmt.Sprint(stats.Indexed))
		PrintKeyValue("Refreshed", fmt.Sprint(stats.Refreshed))
		PrintKeyValue("Took", DimStyle.Render(stats.Duration.String()))
		if stats.Refreshed > 0 {
			PrintHint("Partner names or tags had changed since these opportunities were last written.")
		}
		return nil
	},
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexDrainOnly, "drain", false, "Replay queued outbox operations instead of rebuilding")
}
