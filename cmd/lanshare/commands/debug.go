package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lanshare/lanshare/internal/config"
	"github.com/lanshare/lanshare/internal/deviceid"
	"github.com/lanshare/lanshare/internal/discovery"
)

// debugCmd is the parent command for debug subcommands
var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug and diagnostic commands",
	Long:  `Commands for debugging and diagnosing issues with lanshare.`,
}

// debugConfigCmd prints the effective configuration
var debugConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long: `Print the configuration after the config file and LANSHARE_* environment
overrides have been applied, along with the paths lanshare uses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := config.GetPaths()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}

		path := cfgPath
		if path == "" {
			path = paths.ConfigFile
		}
		fmt.Printf("Config file: %s\n", path)
		fmt.Printf("Logs dir:    %s\n\n", paths.LogsDir)
		fmt.Println(string(data))
		return nil
	},
}

// debugNetCmd prints the addresses used for discovery
var debugNetCmd = &cobra.Command{
	Use:   "net",
	Short: "Print the local IP, broadcast address and instance id",
	RunE: func(cmd *cobra.Command, args []string) error {
		ip := discovery.LocalIP()
		id, err := deviceid.Get()
		if err != nil {
			return err
		}
		if id == "" {
			id = "(not created yet)"
		}

		fmt.Printf("Local IP:       %s\n", ip)
		fmt.Printf("Broadcast:      %s:%d\n", discovery.SubnetBroadcast(ip), cfg.DiscoveryPort)
		fmt.Printf("Command port:   %d\n", cfg.CommandPort)
		fmt.Printf("Video port:     %d\n", cfg.VideoPort)
		fmt.Printf("Instance id:    %s\n", id)
		return nil
	},
}

func init() {
	debugCmd.AddCommand(debugConfigCmd)
	debugCmd.AddCommand(debugNetCmd)
}
