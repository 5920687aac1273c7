package commands

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/lanshare/lanshare/internal/config"
	"github.com/lanshare/lanshare/internal/logging"
	"github.com/lanshare/lanshare/internal/ui"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

var (
	cfg       *config.Config
	cfgPath   string
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "lanshare",
	Short: "lanshare - LAN screen sharing and remote control",
	Long: `lanshare streams a screen to viewers on the local network over UDP and
accepts mouse and keyboard input back over a TCP command channel.

Use "lanshare [command] --help" for more information about a command.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: ~/.lanshare/config.json)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this rotating file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(monitorsCmd)
	rootCmd.AddCommand(debugCmd)
}

// setup loads the config and configures logging before every command
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("verbose") {
		loaded.Verbose, _ = cmd.Flags().GetBool("verbose")
	}
	if cmd.Flags().Changed("log-file") {
		loaded.Log.File, _ = cmd.Flags().GetString("log-file")
	}
	noColor, _ := cmd.Flags().GetBool("no-color")
	ui.SetNoColor(noColor)

	logCloser = logging.Setup(logging.Options{
		Verbose:    loaded.Verbose,
		InputDebug: loaded.InputDebug,
		File:       loaded.Log.File,
		MaxSizeMB:  loaded.Log.MaxSizeMB,
		MaxBackups: loaded.Log.MaxBackups,
		MaxAgeDays: loaded.Log.MaxAgeDays,
	})
	cfg = loaded
	return nil
}

// versionCmd shows version info
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lanshare\n")
		fmt.Printf("  Version:  %s\n", Version)
		fmt.Printf("  Commit:   %s\n", Commit)
		fmt.Printf("  Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}
