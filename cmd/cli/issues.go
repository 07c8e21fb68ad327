package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var issueSeverity string

// issueListEntry mirrors the finding fields rendered by list commands.
type issueListEntry struct {
	ID           string    `json:"id"`
	ScanID       string    `json:"scan_id"`
	Name         string    `json:"name"`
	Severity     string    `json:"severity"`
	Confidence   string    `json:"confidence"`
	URL          string    `json:"url"`
	DiscoveredAt time.Time `json:"discovered_at"`
	Synthetic    bool      `json:"synthetic"`
}

// issuesCmd represents the issues command.
var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List scan findings",
	Long: `List findings reported by the scan engine. When the engine is not
reachable the server substitutes placeholder data and marks it as synthetic.`,
	Example: `  scandash issues
  scandash issues --severity high`,
	RunE: runIssuesList,
}

func init() {
	rootCmd.AddCommand(issuesCmd)
	issuesCmd.Flags().StringVar(&issueSeverity, "severity", "", "filter by severity (critical, high, medium, low, info)")
}

func runIssuesList(_ *cobra.Command, _ []string) error {
	client, err := NewAPIClient()
	if err != nil {
		return err
	}

	path := "/issues"
	if issueSeverity != "" {
		path += "?severity=" + issueSeverity
	}

	var issues []issueListEntry
	if err := client.Get(path, &issues); err != nil {
		return err
	}

	if len(issues) == 0 {
		fmt.Println("No issues found")
		return nil
	}

	displayIssuesTable(issues)
	return nil
}

// displayIssuesTable renders findings in a table format.
func displayIssuesTable(issues []issueListEntry) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Severity", "Confidence", "Name", "URL", "Discovered", "Source")

	for i := range issues {
		issue := &issues[i]

		source := "engine"
		if issue.Synthetic {
			source = "synthetic"
		}

		_ = table.Append([]string{
			issue.Severity,
			issue.Confidence,
			issue.Name,
			issue.URL,
			issue.DiscoveredAt.Format("2006-01-02 15:04"),
			source,
		})
	}

	_ = table.Render()
}
