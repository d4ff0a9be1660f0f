package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kitbox/kitbox/internal/analytics"
)

var (
	statsServer string
	statsToken  string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the aggregated dashboard statistics",
	Long: `Fetch the aggregated dashboard snapshot from a running server.

Examples:
  kitbox stats --server https://kitbox.internal --token $TOKEN
  KITBOX_SERVER=https://kitbox.internal KITBOX_TOKEN=$TOKEN kitbox stats`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsServer, "server", "", "Server base URL")
	statsCmd.Flags().StringVar(&statsToken, "token", "", "Bearer token")
}

func runStats(cmd *cobra.Command, args []string) error {
	client, err := NewClient(statsServer, statsToken)
	if err != nil {
		return err
	}

	var snap analytics.Snapshot
	if err := client.do("GET", "/api/v1/admin/summary", nil, &snap); err != nil {
		return fmt.Errorf("fetching summary: %w", err)
	}

	fmt.Printf("Users:      %d\n", snap.TotalUsers)
	fmt.Printf("Feedback:   %d\n", snap.TotalFeedback)
	fmt.Printf("Executions: %d (last 7 days)\n", snap.TotalExecutions)
	fmt.Printf("Tools:      %d active\n", snap.ActiveTools)

	if len(snap.TopTools) > 0 {
		fmt.Println("\nTop tools:")
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		for _, t := range snap.TopTools {
			fmt.Fprintf(w, "  %s\t%d\n", t.Name, t.Usage)
		}
		w.Flush()
	}

	if len(snap.DailyActivity) > 0 {
		fmt.Println("\nDaily active identities:")
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		for _, d := range snap.DailyActivity {
			fmt.Fprintf(w, "  %s\t%d\n", d.Name, d.Active)
		}
		w.Flush()
	}

	return nil
}
