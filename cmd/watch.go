package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/guardian/internal/capture"
	"github.com/andresmejia3/guardian/internal/config"
	"github.com/andresmejia3/guardian/internal/display"
	"github.com/andresmejia3/guardian/internal/loop"
	"github.com/andresmejia3/guardian/internal/types"
	"github.com/andresmejia3/guardian/internal/utils"
	"github.com/andresmejia3/guardian/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gocv.io/x/gocv"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the live feed with face, gender and emotion annotations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runWatch(cmd.Context(), opts)
	},
}

func addWatchFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&opts.Device, "device", "d", "0", "Camera index, video file, or stream URL")
	fs.IntVarP(&opts.Interval, "interval", "n", 5, "Analyze every Nth frame (higher is smoother, 1 analyzes every frame)")
	fs.BoolVar(&opts.Async, "async", false, "Run analysis on a background goroutine so the feed never stalls")
	fs.BoolVar(&opts.Headless, "headless", false, "Do not open a window; show a progress bar instead")
	fs.StringVarP(&opts.Output, "output", "o", "", "Write the annotated feed to this video file (MJPG)")
	fs.StringVar(&opts.Snapshots, "snapshots", "", "Directory for annotated JPEGs whenever analysis finds faces")
	fs.BoolVar(&opts.Record, "record", false, "Record every analysis to PostgreSQL")
}

func init() {
	addWatchFlags(watchCmd.Flags())
	addWorkerFlags(watchCmd.Flags())
	rootCmd.AddCommand(watchCmd)
}

func workerConfig(o config.Options) worker.Config {
	cfg := worker.DefaultConfig()
	cfg.Python = o.Python
	cfg.Script = o.WorkerScript
	cfg.Detector = o.Detector
	cfg.ReadTimeout = o.WorkerTimeout
	return cfg
}

// runWatch orchestrates a live session: camera, Python engine, optional recording, and the display loop.
func runWatch(ctx context.Context, o config.Options) error {
	if err := o.Validate(); err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	// 1. The camera must open before anything else starts
	cam, err := capture.Open(o.Device)
	if err != nil {
		utils.ShowError("Cannot open capture device", err, nil)
		return err
	}
	handedOff := false
	defer func() {
		if !handedOff {
			cam.Close()
		}
	}()
	fmt.Fprintf(os.Stderr, "📷 Capture source %s opened\n", o.Device)

	// 2. Start the analysis engine
	fmt.Fprintln(os.Stderr, "🚀 Starting DeepFace engine...")
	w, err := worker.NewDeepFaceWorker(ctx, 0, workerConfig(o))
	if err != nil {
		utils.ShowError("Worker startup failed", err, nil)
		return err
	}
	defer w.Close()

	// 3. Optional observers of each analysis
	var hooks []loop.Hook[*gocv.Mat]
	session := time.Now().Format("20060102-150405")

	if o.Record {
		if err := connectDB(ctx); err != nil {
			utils.ShowError("Recording unavailable", err, nil)
			return err
		}
		session, err = DB.CreateSession(ctx, o.Device, o.Interval)
		if err != nil {
			utils.ShowError("Failed to register session", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "🗄️  Recording session %s\n", session)
		hooks = append(hooks, recordHook(ctx, session))
	}

	if o.Snapshots != "" {
		sw, err := display.NewSnapshotWriter(o.Snapshots, session, logger)
		if err != nil {
			utils.ShowError("Snapshot directory unavailable", err, nil)
			return err
		}
		hooks = append(hooks, sw.Analyzed)
	}

	// 4. Display (and optional video output)
	var out *display.Output
	if o.Output != "" {
		width, height := cam.Size()
		out, err = display.OpenOutput(o.Output, cam.FPS(), width, height)
		if err != nil {
			utils.ShowError("Cannot open output video", err, nil)
			return err
		}
	}

	var disp loop.Display[*gocv.Mat]
	if o.Headless {
		disp = display.NewHeadless(cam.FrameCount(), out)
	} else {
		disp = display.NewWindow(display.WindowTitle, out)
		fmt.Fprintf(os.Stderr, "👁️  Watching. Press '%c' in the window to quit.\n", display.QuitKey)
	}

	l, err := loop.New(loop.Config{Interval: o.Interval, Async: o.Async, Logger: logger},
		loop.Source[*gocv.Mat](cam), loop.Analyzer[*gocv.Mat](capture.JPEGAnalyzer{Next: w}), disp, hooks...)
	if err != nil {
		disp.Close()
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	// The loop now owns the camera and the display and releases both on every exit path
	handedOff = true
	start := time.Now()
	sum, err := l.Run(ctx)

	if o.Record {
		if ferr := DB.FinishSession(context.Background(), session, sum.Frames, string(sum.Reason)); ferr != nil {
			logger.Warn("failed to close session record", "session", session, "err", ferr)
		}
	}

	printSummary(sum, time.Since(start))

	// Wait for the worker to exit so its stderr buffer is complete
	w.Close()
	if err != nil {
		utils.ShowError("Watch loop failed", err, w.Cmd)
		return err
	}
	if sum.Reason != loop.StopCancelled && sum.Failures > 0 && sum.Failures == sum.Analyses {
		// Most likely the Python side is broken, show its logs
		utils.ShowError("Every analysis failed", nil, w.Cmd)
	}
	return nil
}

// recordHook persists each analysis. Database errors are logged, never fatal to the feed.
func recordHook(ctx context.Context, session string) loop.Hook[*gocv.Mat] {
	return func(index int, _ *gocv.Mat, faces types.AnalysisResult, analysisErr error) {
		if err := DB.RecordAnalysis(ctx, session, index, faces, analysisErr); err != nil {
			logger.Warn("failed to record analysis", "frame", index, "err", err)
		}
	}
}

func printSummary(sum loop.Summary, elapsed time.Duration) {
	if sum.Reason == loop.StopStreamEnd {
		fmt.Fprintln(os.Stderr, "Can't receive frame (stream end?). Exiting ...")
	}
	fmt.Fprintf(os.Stderr, "\n🏁 Stopped (%s) after %s. Frames: %d, analyses: %d (%d failed)",
		sum.Reason, utils.FmtDuration(elapsed), sum.Frames, sum.Analyses, sum.Failures)
	if sum.Dropped > 0 {
		fmt.Fprintf(os.Stderr, ", skipped while busy: %d", sum.Dropped)
	}
	fmt.Fprintln(os.Stderr)
}
