package overwatch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Orlik-B/NVR-surveillance/internal/camera"
	"github.com/Orlik-B/NVR-surveillance/internal/config"
	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

var probeCamera string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that every configured camera stream answers",
	Long: `Open a short RTSP session to each configured camera, list the media
formats it offers and wait for the first RTP packet.`,
	Example: `  # Probe every camera
  overwatch probe

  # Probe a single camera
  overwatch probe --camera Camera_101`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeCamera, "camera", "", "probe only the camera with this name")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	cameras := cfg.Cameras
	if probeCamera != "" {
		cam, ok := cfg.Camera(probeCamera)
		if !ok {
			return fmt.Errorf("camera %q is not configured", probeCamera)
		}
		cameras = []config.CameraConfig{cam}
	}

	prober := camera.NewProber(cfg.Stream.ProbeTimeout, log)
	return probeAll(cmd.Context(), prober, cfg, cameras, cmd.OutOrStdout())
}

// probeAll prints one table row per camera and fails if any probe failed
func probeAll(ctx context.Context, prober *camera.Prober, cfg *config.Config, cameras []config.CameraConfig, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CAMERA\tSTATUS\tFORMATS\tFIRST PACKET\tDETAIL")

	failed := 0
	for _, cam := range cameras {
		result, err := prober.Probe(ctx, cam.Name, cfg.StreamURL(cam))
		if err != nil {
			failed++
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t%v\n", cam.Name, err)
			continue
		}
		fmt.Fprintf(w, "%s\tOK\t%s\t%v\t%s\n", cam.Name, strings.Join(result.Formats, ","), result.FirstPacket, result.URL)
	}
	w.Flush()

	if failed > 0 {
		return fmt.Errorf("%d of %d camera streams failed the probe", failed, len(cameras))
	}
	return nil
}
