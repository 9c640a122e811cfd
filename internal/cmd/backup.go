package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/sprintctl/internal/store"
	"github.com/felixgeelhaar/sprintctl/internal/ux"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "List and restore state snapshots",
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the retained state snapshots",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot-id>",
	Short: "Restore the state directory from a snapshot",
	Long: `Replace the current state files with a snapshot's contents. Every file
is verified against the snapshot's hash manifest before anything is written;
a tampered or truncated snapshot is refused whole.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

// BackupList is the snapshot inventory
type BackupList struct {
	Snapshots []store.Snapshot `json:"snapshots"`
}

// RenderText renders the inventory for humans
func (l *BackupList) RenderText(styles ux.Styles) string {
	if len(l.Snapshots) == 0 {
		return styles.Muted.Render("No snapshots")
	}

	var b strings.Builder
	b.WriteString(styles.Key.Render("Snapshots:"))
	for _, snap := range l.Snapshots {
		b.WriteString(fmt.Sprintf("\n  %s  %s  %d files",
			snap.ID, snap.CreatedAt.Format("2006-01-02 15:04:05"), len(snap.Files)))
	}
	return b.String()
}

// RestoreReport names the snapshot the state was rolled back to
type RestoreReport struct {
	SnapshotID string `json:"snapshot_id"`
}

// RenderText renders the restore outcome for humans
func (r *RestoreReport) RenderText(styles ux.Styles) string {
	return styles.Success.Render("Restored snapshot " + r.SnapshotID)
}

func runBackupList(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	s, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}

	snapshots, err := s.ListBackups()
	if err != nil {
		return err
	}

	return cmdCtx.Emit(&BackupList{Snapshots: snapshots})
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	s, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}

	if err := s.Restore(args[0]); err != nil {
		return err
	}

	return cmdCtx.Emit(&RestoreReport{SnapshotID: args[0]})
}

func init() {
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}
