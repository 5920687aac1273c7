package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lanshare/lanshare/internal/deviceid"
	"github.com/lanshare/lanshare/internal/discovery"
	"github.com/lanshare/lanshare/internal/ui"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find sharing servers on the LAN",
	Long: `Listen for discovery announcements on the discovery port for a few
seconds and list every server found, one per IP address.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().Duration("timeout", 0, "How long to listen (default from config, 3s)")
}

// scanProgress keeps the spinner message in step with the results
type scanProgress struct {
	spinner *ui.Spinner
	count   int
}

func (p *scanProgress) OnServerFound(a discovery.Announcement) {
	p.count++
	p.spinner.SetMessage(fmt.Sprintf("Scanning... %d found (latest: %s)", p.count, a.Name))
}

func (p *scanProgress) OnScanFinished([]discovery.Announcement) {}

func runScan(cmd *cobra.Command, args []string) error {
	duration, _ := cmd.Flags().GetDuration("timeout")
	if duration <= 0 {
		duration = cfg.ScanDuration()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// A server running on this machine uses the same id; hide it.
	selfID, _ := deviceid.Get()

	progress := &scanProgress{spinner: ui.NewSpinner("Scanning for servers...")}
	scanner := discovery.NewScanner(discovery.ScannerOptions{
		Port:               cfg.DiscoveryPort,
		SelfID:             selfID,
		DefaultCommandPort: cfg.CommandPort,
		DefaultVideoPort:   cfg.VideoPort,
	}, progress)

	progress.spinner.Start()
	found, err := scanner.Scan(ctx, duration)
	progress.spinner.Stop()
	if err != nil {
		return err
	}

	if len(found) == 0 {
		fmt.Println("No servers found.")
		return nil
	}

	rows := make([][]string, 0, len(found))
	for _, a := range found {
		rows = append(rows, []string{a.Name, a.CommandAddr(), strconv.Itoa(a.VideoPort)})
	}
	fmt.Printf("Found %d server(s):\n\n", len(found))
	fmt.Print(ui.RenderTable([]string{"NAME", "COMMAND", "VIDEO PORT"}, rows))
	return nil
}
