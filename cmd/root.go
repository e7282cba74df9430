package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/guardian/internal/config"
	"github.com/andresmejia3/guardian/internal/store"
	"github.com/andresmejia3/guardian/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// DB is the database connection, opened only by commands that record or read sessions
	DB *store.Store

	// opts is shared by every command; flags and the config file both write into it
	opts       config.Options
	configPath string
	logger     = slog.Default()
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "guardian",
	Short:   "Live camera feed annotated with face, gender and emotion labels",
	Long:    "Guardian shows a camera feed with face boxes plus gender and emotion labels.\nRunning it without a subcommand is the same as 'guardian watch'.",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Apply(cmd.Flags(), configPath, &opts); err != nil {
			return err
		}
		l, err := utils.NewLogger(opts.LogLevel)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runWatch(cmd.Context(), opts)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

// connectDB opens the session store on first use.
func connectDB(ctx context.Context) error {
	if DB != nil {
		return nil
	}
	s, err := store.New(ctx, config.DatabaseURL(opts.DB))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = s
	return nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// addWorkerFlags registers the analyzer settings shared by watch and analyze.
func addWorkerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&opts.Detector, "detector", "mtcnn", "Face detector backend used by DeepFace")
	fs.StringVar(&opts.Python, "python", "python3", "Python interpreter for the analysis worker")
	fs.StringVar(&opts.WorkerScript, "worker-script", "python/worker.py", "Path to the DeepFace worker script")
	fs.DurationVar(&opts.WorkerTimeout, "worker-timeout", 0, "Timeout for a single analysis (0 waits forever)")
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (flags override its values)")
	rootCmd.PersistentFlags().StringVar(&opts.DB, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/guardian)")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	addWatchFlags(rootCmd.Flags())
	addWorkerFlags(rootCmd.Flags())
}
