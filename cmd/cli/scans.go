package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	scanName   string
	activeOnly bool
)

// scanListEntry mirrors the scan fields rendered by list commands.
type scanListEntry struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	TargetURL   string     `json:"target_url"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Progress    *struct {
		Percent   int    `json:"progress"`
		State     string `json:"state"`
		Synthetic bool   `json:"synthetic"`
	} `json:"progress"`
}

// scansCmd represents the scans command.
var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Manage security scans",
	Long: `Manage security scans on a running scandash server: start new scans,
list existing ones, and pause, resume, or stop active scans.`,
	Example: `  scandash scans list
  scandash scans start https://example.com
  scandash scans stop 4f6c4b9e-8a1d-4f6e-9c3b-2f1a0d5e7b8c`,
}

// scansListCmd represents the scans list command.
var scansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scans",
	Long:  `List scans known to the server, optionally restricted to active ones.`,
	Example: `  scandash scans list
  scandash scans list --active`,
	RunE: runScansList,
}

// scansStartCmd represents the scans start command.
var scansStartCmd = &cobra.Command{
	Use:   "start <target-url>",
	Short: "Start a scan",
	Long: `Start a scan against the given target URL. Requires a bearer token
in the SCANDASH_TOKEN environment variable.`,
	Example: `  scandash scans start https://example.com
  scandash scans start https://example.com --name "Nightly scan"`,
	Args: cobra.ExactArgs(1),
	RunE: runScansStart,
}

// scansPauseCmd represents the scans pause command.
var scansPauseCmd = &cobra.Command{
	Use:   "pause <scan-id>",
	Short: "Pause a running scan",
	Args:  cobra.ExactArgs(1),
	RunE:  makeCommandRunner("pause"),
}

// scansResumeCmd represents the scans resume command.
var scansResumeCmd = &cobra.Command{
	Use:   "resume <scan-id>",
	Short: "Resume a paused scan",
	Args:  cobra.ExactArgs(1),
	RunE:  makeCommandRunner("resume"),
}

// scansStopCmd represents the scans stop command.
var scansStopCmd = &cobra.Command{
	Use:   "stop <scan-id>",
	Short: "Stop an active scan",
	Args:  cobra.ExactArgs(1),
	RunE:  makeCommandRunner("stop"),
}

func init() {
	rootCmd.AddCommand(scansCmd)
	scansCmd.AddCommand(scansListCmd)
	scansCmd.AddCommand(scansStartCmd)
	scansCmd.AddCommand(scansPauseCmd)
	scansCmd.AddCommand(scansResumeCmd)
	scansCmd.AddCommand(scansStopCmd)

	scansListCmd.Flags().BoolVar(&activeOnly, "active", false, "only show running and paused scans")
	scansStartCmd.Flags().StringVar(&scanName, "name", "", "display name for the scan")
}

func runScansList(_ *cobra.Command, _ []string) error {
	client, err := NewAPIClient()
	if err != nil {
		return err
	}

	var scans []scanListEntry
	if activeOnly {
		if err := client.Get("/scans/active", &scans); err != nil {
			return err
		}
	} else {
		var response struct {
			Data []scanListEntry `json:"data"`
		}
		if err := client.Get("/scans", &response); err != nil {
			return err
		}
		scans = response.Data
	}

	if len(scans) == 0 {
		fmt.Println("No scans found")
		return nil
	}

	displayScansTable(scans)
	return nil
}

func runScansStart(_ *cobra.Command, args []string) error {
	client, err := NewAPIClient()
	if err != nil {
		return err
	}

	request := map[string]string{"target_url": args[0]}
	if scanName != "" {
		request["name"] = scanName
	}

	var scan scanListEntry
	if err := client.Post("/scans", request, &scan); err != nil {
		return err
	}

	fmt.Printf("Scan started: %s (%s)\n", scan.ID, scan.TargetURL)
	return nil
}

// makeCommandRunner builds a RunE forwarding a lifecycle command.
func makeCommandRunner(verb string) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		client, err := NewAPIClient()
		if err != nil {
			return err
		}

		var scan scanListEntry
		if err := client.Post("/scans/"+args[0]+"/"+verb, nil, &scan); err != nil {
			return err
		}

		fmt.Printf("Scan %s: %s (status %s)\n", verb, scan.ID, scan.Status)
		return nil
	}
}

// displayScansTable renders scans in a table format.
func displayScansTable(scans []scanListEntry) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Target", "Status", "Progress", "Created", "Completed")

	for i := range scans {
		scan := &scans[i]

		displayID := scan.ID
		if len(displayID) > 8 {
			displayID = displayID[:8] + "..."
		}

		progress := "-"
		if scan.Progress != nil {
			progress = fmt.Sprintf("%d%% (%s)", scan.Progress.Percent, scan.Progress.State)
			if scan.Progress.Synthetic {
				progress += " [synthetic]"
			}
		}

		completed := "-"
		if scan.CompletedAt != nil {
			completed = scan.CompletedAt.Format("2006-01-02 15:04")
		}

		_ = table.Append([]string{
			displayID,
			scan.Name,
			scan.TargetURL,
			scan.Status,
			progress,
			scan.CreatedAt.Format("2006-01-02 15:04"),
			completed,
		})
	}

	_ = table.Render()
}
