package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/andresmejia3/guardian/internal/utils"
	"github.com/spf13/cobra"
)

var sessionID string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded watch sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := connectDB(cmd.Context()); err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return err
		}
		if sessionID != "" {
			return runSessionDetail(cmd, sessionID)
		}
		return runSessions(cmd)
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionID, "id", "", "Show the emotion breakdown of one session")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command) error {
	sessions, err := DB.ListSessions(cmd.Context())
	if err != nil {
		utils.ShowError("Failed to list sessions", err, nil)
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions recorded yet. Run 'guardian watch --record' first.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEVICE\tSTARTED\tDURATION\tFRAMES\tANALYSES\tFAILED\tFACES\tSTOP")
	fmt.Fprintln(w, "--\t----\t------\t-------\t--------\t------\t--------\t------\t-----\t----")

	for _, s := range sessions {
		duration := "running"
		if s.EndedAt != nil {
			duration = utils.FmtDuration(s.EndedAt.Sub(s.StartedAt))
		}
		reason := s.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			s.ID, s.Name, s.Device, s.StartedAt.Local().Format("2006-01-02 15:04"), duration,
			s.Frames, s.Analyses, s.Failures, s.Faces, reason)
	}
	w.Flush()
	return nil
}

func runSessionDetail(cmd *cobra.Command, id string) error {
	counts, err := DB.EmotionCounts(cmd.Context(), id)
	if err != nil {
		utils.ShowError("Failed to load session", err, nil)
		return err
	}
	if len(counts) == 0 {
		fmt.Printf("Session %s has no detected faces.\n", id)
		return nil
	}

	emotions := make([]string, 0, len(counts))
	for e := range counts {
		emotions = append(emotions, e)
	}
	// Most frequent first, ties alphabetical
	sort.Slice(emotions, func(i, j int) bool {
		if counts[emotions[i]] != counts[emotions[j]] {
			return counts[emotions[i]] > counts[emotions[j]]
		}
		return emotions[i] < emotions[j]
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "EMOTION\tFACES")
	fmt.Fprintln(w, "-------\t-----")
	for _, e := range emotions {
		fmt.Fprintf(w, "%s\t%d\n", e, counts[e])
	}
	w.Flush()
	return nil
}
