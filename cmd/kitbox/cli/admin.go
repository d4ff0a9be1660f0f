package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kitbox/kitbox/internal/db"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage persisted admin privilege",
	Long: `Grant or revoke persisted admin privilege directly in the store.
Requires DATABASE_URL. Protected profiles (bootstrap allowlist identities)
cannot be demoted this way.`,
}

var (
	adminUID       string
	adminProtected bool
)

var adminPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Grant persisted admin privilege to a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdminSet(cmd.Context(), true)
	},
}

var adminDemoteCmd = &cobra.Command{
	Use:   "demote",
	Short: "Revoke persisted admin privilege from a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdminSet(cmd.Context(), false)
	},
}

func init() {
	for _, c := range []*cobra.Command{adminPromoteCmd, adminDemoteCmd} {
		c.Flags().StringVar(&adminUID, "uid", "", "Profile uid")
		c.MarkFlagRequired("uid")
	}
	adminPromoteCmd.Flags().BoolVar(&adminProtected, "protected", false, "Also mark the profile protected (undemotable)")

	adminCmd.AddCommand(adminPromoteCmd)
	adminCmd.AddCommand(adminDemoteCmd)
}

func runAdminSet(ctx context.Context, isAdmin bool) error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	database, err := db.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if isAdmin && adminProtected {
		if err := database.MarkProfileProtected(ctx, adminUID); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Profile %s promoted and marked protected\n", adminUID)
		return nil
	}

	profile, err := database.SetProfileAdmin(ctx, adminUID, isAdmin)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) && !isAdmin {
			return fmt.Errorf("profile %s not found or protected from demotion", adminUID)
		}
		return err
	}

	verb := "demoted"
	if isAdmin {
		verb = "promoted"
	}
	fmt.Fprintf(os.Stderr, "✓ Profile %s (%s) %s\n", profile.UID, profile.Email, verb)
	return nil
}
