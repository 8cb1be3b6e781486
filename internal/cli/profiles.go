package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tasklift/autopilot/internal/vault"
)

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesBackupCmd)
	profilesCmd.AddCommand(profilesSwitchCmd)
	profilesCmd.AddCommand(profilesDeleteCmd)
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage credential profiles",
	Long:  "Back up, list, switch, and delete credential profiles in the vault.",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := vault.NewManager(GetConfig().VaultPath)
		profiles, err := manager.List(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list profiles: %w", err)
		}

		if IsJSONOutput() {
			return WriteOutput(os.Stdout, profiles)
		}

		if len(profiles) == 0 {
			fmt.Fprintln(os.Stdout, "No profiles stored. Run 'autopilot profiles backup <name>' to save the current credentials.")
			return nil
		}

		rows := make([][]string, 0, len(profiles))
		for _, p := range profiles {
			rows = append(rows, []string{
				p.Name,
				string(p.Provider),
				formatYesNo(p.Active),
				p.CreatedAt.Local().Format(time.RFC3339),
			})
		}
		return writeTable(os.Stdout, []string{"NAME", "PROVIDER", "ACTIVE", "CREATED"}, rows)
	},
}

var profilesBackupCmd = &cobra.Command{
	Use:   "backup <name>",
	Short: "Save the current credentials as a profile",
	Long:  "Copy the live auth files into the vault under the given profile name.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := vault.Backup(GetConfig().VaultPath, args[0])
		if err != nil {
			if errors.Is(err, vault.ErrNoAuthFiles) {
				return fmt.Errorf("no credentials found to back up (log in first)")
			}
			return fmt.Errorf("failed to back up profile: %w", err)
		}

		if IsJSONOutput() {
			return WriteOutput(os.Stdout, profile)
		}
		fmt.Fprintf(os.Stdout, "Profile %q saved.\n", profile.Name)
		return nil
	},
}

var profilesSwitchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Make a stored profile active",
	Long:  "Restore the named profile's auth files, replacing the live credentials.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := vault.NewManager(GetConfig().VaultPath)
		if err := manager.SwitchTo(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Switched to profile %q.\n", args[0])
		return nil
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a stored profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := vault.Delete(GetConfig().VaultPath, args[0]); err != nil {
			if errors.Is(err, vault.ErrProfileNotFound) {
				return fmt.Errorf("profile %q not found", args[0])
			}
			return fmt.Errorf("failed to delete profile: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Profile %q deleted.\n", args[0])
		return nil
	},
}
