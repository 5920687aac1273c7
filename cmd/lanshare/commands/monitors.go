package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lanshare/lanshare/internal/capture"
	"github.com/lanshare/lanshare/internal/ui"
)

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "List displays that can be shared",
	RunE: func(cmd *cobra.Command, args []string) error {
		monitors := capture.Monitors()
		if len(monitors) == 0 {
			fmt.Println("No active displays found.")
			return nil
		}

		rows := make([][]string, 0, len(monitors))
		for _, m := range monitors {
			b := m.Bounds
			rows = append(rows, []string{
				strconv.Itoa(m.Index),
				m.Name(),
				fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
				fmt.Sprintf("%d,%d", b.Min.X, b.Min.Y),
			})
		}
		fmt.Print(ui.RenderTable([]string{"INDEX", "NAME", "SIZE", "OFFSET"}, rows))
		return nil
	},
}
