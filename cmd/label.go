package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresmejia3/guardian/internal/store"
	"github.com/andresmejia3/guardian/internal/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label <session_id> <name>",
	Short: "Give a recorded session a readable name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if _, err := uuid.Parse(args[0]); err != nil {
			utils.ShowError("Invalid session ID", err, nil)
			return err
		}
		if err := connectDB(cmd.Context()); err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return err
		}
		return runLabel(cmd.Context(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func runLabel(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		err := errors.New("name must not be blank")
		utils.ShowError("Invalid name", err, nil)
		return err
	}

	if err := DB.RenameSession(ctx, id, name); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			err = fmt.Errorf("%w: %s", err, id)
		}
		utils.ShowError("Failed to label session", err, nil)
		return err
	}

	fmt.Printf("✅ Session %s labeled as '%s'\n", id, name)
	return nil
}
