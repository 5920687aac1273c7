package commands

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanshare/lanshare/internal/client"
	"github.com/lanshare/lanshare/internal/codec"
	"github.com/lanshare/lanshare/internal/control"
	"github.com/lanshare/lanshare/internal/ui"
)

var viewCmd = &cobra.Command{
	Use:   "view <server>",
	Short: "Connect to a sharing server and receive its screen",
	Long: `Connect to a server's command port (default 9998), register a local UDP
video port and receive frames until interrupted. Frame rate and stream state
are printed periodically; --snapshot writes the last frame on exit.`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

func init() {
	viewCmd.Flags().String("user", "", "Username sent with the registration")
	viewCmd.Flags().String("video-addr", "", "Local UDP address for video (default 0.0.0.0:<video_port>)")
	viewCmd.Flags().String("snapshot", "", "Write the last received frame to this JPEG file on exit")
	viewCmd.Flags().Duration("duration", 0, "Disconnect after this long (0 = until Ctrl+C)")
}

type viewObserver struct {
	frames atomic.Uint64
}

func (o *viewObserver) OnFrame(codec.Frame) {
	o.frames.Add(1)
}

func (o *viewObserver) OnStreamState(state control.StreamState) {
	fmt.Println(ui.RenderDim(fmt.Sprintf("  stream %s", state)))
}

func (o *viewObserver) OnDisconnected(err error) {
	if err != nil {
		fmt.Println(ui.RenderError(fmt.Errorf("disconnected: %w", err)))
	}
}

func runView(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("user")
	if username == "" {
		username = cfg.Username
	}
	videoAddr, _ := cmd.Flags().GetString("video-addr")
	if videoAddr == "" {
		videoAddr = fmt.Sprintf("0.0.0.0:%d", cfg.VideoPort)
	}
	snapshot, _ := cmd.Flags().GetString("snapshot")
	duration, _ := cmd.Flags().GetDuration("duration")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	obs := &viewObserver{}
	spinner := ui.NewSpinner("Connecting to " + args[0])
	spinner.Start()
	c, err := client.Connect(ctx, client.WithDefaultPort(args[0], cfg.CommandPort), client.Options{
		VideoAddr: videoAddr,
		Username:  username,
		Observer:  obs,
	})
	spinner.Stop()
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Println(ui.RenderSuccess(fmt.Sprintf("Connected to %s, video on UDP %d", c.Server(), c.VideoPort())))

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	var last uint64
	for c.Connected() {
		select {
		case <-ctx.Done():
			return finishView(c, snapshot)
		case <-ticker.C:
			n := obs.frames.Load()
			fps := float64(n-last) / 2
			last = n
			size := "-"
			if f, ok := c.LatestFrame(); ok {
				b := f.Image.Bounds()
				size = fmt.Sprintf("%dx%d", b.Dx(), b.Dy())
			}
			fmt.Printf("  frames=%d fps=%.1f size=%s state=%s\n", n, fps, size, c.StreamState())
		}
	}
	return finishView(c, snapshot)
}

func finishView(c *client.Client, snapshot string) error {
	if snapshot == "" {
		return nil
	}
	f, ok := c.LatestFrame()
	if !ok {
		log.Printf("[WARN] No frame received, snapshot not written")
		return nil
	}
	enc := &codec.Encoder{Quality: 90, MaxBytes: math.MaxInt32}
	data, err := enc.Encode(f.Image)
	if err != nil {
		return err
	}
	if err := os.WriteFile(snapshot, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	fmt.Println(ui.RenderSuccess("Snapshot written to " + snapshot))
	return nil
}
