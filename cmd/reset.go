package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/guardian/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB    bool
	resetFiles bool
	resetYes   bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset recorded state (session database, snapshot files)",
	Long:  "Clears recorded data. By default it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// No component flags means everything
		if !resetDB && !resetFiles {
			resetDB = true
			resetFiles = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB && confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP all session tables?") {
			if err := connectDB(cmd.Context()); err != nil {
				utils.ShowError("Database unavailable", err, nil)
				return err
			}
			fmt.Println("🗑️  Clearing Database...")
			if err := DB.Reset(cmd.Context()); err != nil {
				utils.ShowError("Failed to reset database", err, nil)
				return err
			}
		}

		if resetFiles {
			if opts.Snapshots == "" {
				fmt.Println("ℹ️  No snapshot directory configured, skipping files.")
			} else if confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete everything under %s?", opts.Snapshots)) {
				fmt.Println("🗑️  Clearing Snapshots...")
				removeDir(opts.Snapshots)
			}
		}

		fmt.Println("✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "sessions", false, "Clear the PostgreSQL session tables")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Clear the snapshot directory")
	resetCmd.Flags().StringVar(&opts.Snapshots, "snapshots", "", "Snapshot directory to clear")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, out io.Writer, prompt string) bool {
	if resetYes {
		return true
	}
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
