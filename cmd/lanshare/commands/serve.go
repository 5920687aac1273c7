package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/lanshare/lanshare/internal/capture"
	"github.com/lanshare/lanshare/internal/config"
	"github.com/lanshare/lanshare/internal/control"
	"github.com/lanshare/lanshare/internal/deviceid"
	"github.com/lanshare/lanshare/internal/input"
	"github.com/lanshare/lanshare/internal/metrics"
	"github.com/lanshare/lanshare/internal/server"
	"github.com/lanshare/lanshare/internal/session"
	"github.com/lanshare/lanshare/internal/statusapi"
	"github.com/lanshare/lanshare/internal/stream"
	"github.com/lanshare/lanshare/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Share this screen with viewers on the LAN",
	Long: `Start a sharing server. Viewers connect to the command port, register a
UDP video port and receive the screen as fragmented JPEG frames. Input they
send back is passed to the input injector.

The server announces itself on the discovery port every few seconds unless
--no-announce is given. Changes to jpeg_quality and width in the config file
are applied while running.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("monitor", 0, "Display index to capture (see 'lanshare monitors')")
	serveCmd.Flags().String("pattern", "", "Stream a synthetic WxH test pattern instead of the screen")
	serveCmd.Flags().Int("quality", 0, "JPEG quality 1-100")
	serveCmd.Flags().Int("width", 0, "Downscale frames to this width")
	serveCmd.Flags().String("name", "", "Name shown to viewers")
	serveCmd.Flags().Int("port", 0, "TCP command port")
	serveCmd.Flags().Bool("no-announce", false, "Do not broadcast discovery announcements")
	serveCmd.Flags().String("metrics-addr", "", "Serve /metrics and /api on this address")
	serveCmd.Flags().Bool("stream-now", false, "Start streaming before the first viewer registers")
}

func runServe(cmd *cobra.Command, args []string) error {
	c := *cfg
	flags := cmd.Flags()
	if flags.Changed("monitor") {
		c.Monitor, _ = flags.GetInt("monitor")
	}
	if flags.Changed("quality") {
		c.JPEGQuality, _ = flags.GetInt("quality")
	}
	if flags.Changed("width") {
		c.Width, _ = flags.GetInt("width")
	}
	if flags.Changed("name") {
		c.Name, _ = flags.GetString("name")
	}
	if flags.Changed("port") {
		c.CommandPort, _ = flags.GetInt("port")
	}
	if flags.Changed("metrics-addr") {
		c.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if noAnnounce, _ := flags.GetBool("no-announce"); noAnnounce {
		c.Announce = false
	}
	if err := c.Validate(); err != nil {
		return err
	}

	pattern, _ := flags.GetString("pattern")
	source, err := openSource(pattern, c.Monitor)
	if err != nil {
		return err
	}

	instanceID, err := deviceid.GetOrCreate()
	if err != nil {
		log.Printf("[WARN] Could not persist instance id: %v", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	history := metrics.NewHistory(0)

	srv := server.New(source, input.LogInjector{}, server.Options{
		CommandAddr:   fmt.Sprintf(":%d", c.CommandPort),
		Name:          c.DisplayName(),
		VideoPort:     c.VideoPort,
		Announce:      c.Announce,
		DiscoveryPort: c.DiscoveryPort,
		InstanceID:    instanceID,
		Stream: stream.Options{
			Quality:   c.JPEGQuality,
			Width:     c.Width,
			ChunkSize: c.ChunkSize,
			Interval:  c.FrameInterval(),
		},
		Handler:  control.HandlerOptions{},
		Metrics:  m,
		History:  history,
		Observer: consoleObserver{},
	})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer srv.Stop()

	if now, _ := flags.GetBool("stream-now"); now {
		if _, err := srv.StartStreaming(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.MetricsAddr != "" {
		go func() {
			if err := statusapi.Serve(ctx, c.MetricsAddr, statusapi.NewRouter(srv, history, reg)); err != nil {
				log.Printf("[ERROR] status API: %v", err)
			}
		}()
	}

	if path := watchPath(); path != "" {
		go func() {
			err := config.Watch(ctx, path, func(n *config.Config) {
				srv.SetEncoding(n.JPEGQuality, n.Width)
				log.Printf("[INFO] Encoding updated: quality=%d width=%d", n.JPEGQuality, n.Width)
			})
			if err != nil {
				log.Printf("[WARN] Config watch disabled: %v", err)
			}
		}()
	}

	st := srv.Status()
	fmt.Print(ui.RenderPanel("lanshare server", []ui.Row{
		{Label: "Name", Value: st.Name},
		{Label: "Command", Value: st.CommandAddr},
		{Label: "Screen", Value: st.Screen},
		{Label: "Announce", Value: strconv.FormatBool(st.Announcing)},
		{Label: "Encoding", Value: fmt.Sprintf("q=%d width=%d", c.JPEGQuality, c.Width)},
	}, 60))
	fmt.Println(ui.RenderDim("  Press Ctrl+C to stop"))

	<-ctx.Done()
	fmt.Println()
	log.Printf("[INFO] Shutting down")
	return nil
}

// openSource returns the screen grabber, or a synthetic pattern for "WxH"
func openSource(pattern string, monitor int) (capture.Source, error) {
	if pattern == "" {
		src, err := capture.NewScreenSource(monitor)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	w, h, ok := strings.Cut(strings.ToLower(pattern), "x")
	if !ok {
		return nil, errors.New("pattern must look like 1280x720")
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid pattern size %q", pattern)
	}
	return capture.NewPatternSource(width, height), nil
}

// watchPath is the config file to watch, or "" when none can be resolved
func watchPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	p, err := config.DefaultPath()
	if err != nil {
		return ""
	}
	return p
}

// consoleObserver prints viewer activity
type consoleObserver struct{}

func (consoleObserver) OnClientConnected(s session.Session) {
	fmt.Println(ui.RenderSuccess("+ viewer connected: " + s.ID))
}

func (consoleObserver) OnClientDisconnected(s session.Session) {
	fmt.Println(ui.RenderWarning("- viewer disconnected: " + s.Summary()))
}

func (consoleObserver) OnStatus(msg string) {
	fmt.Println(ui.RenderDim("  " + msg))
}

func (consoleObserver) OnError(err error) {
	fmt.Println(ui.RenderError(err))
}
