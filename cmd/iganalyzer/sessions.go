package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var cleanupExpired bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and remove stored analysis sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup [session-id...]",
	Short: "Remove sessions and their media",
	Example: `  iganalyzer sessions cleanup 3f2a9c1b7d4e
  iganalyzer sessions cleanup --expired`,
	RunE: runSessionsCleanup,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCleanupCmd)
	sessionsCleanupCmd.Flags().BoolVar(&cleanupExpired, "expired", false, "remove every expired session")
}

// openSessions loads the snapshot backend without credentials; these
// commands never talk to Instagram
func openSessions() (*app, error) {
	cfg, log, err := loadConfig(nil)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, log, nil)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	a, err := openSessions()
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.sessions.Load(cmd.Context()); err != nil {
		return err
	}

	list := a.sessions.List()
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No live sessions")
		return nil
	}
	now := time.Now()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tSTATUS\tPROGRESS\tPOSTS\tSTORIES\tMINUTES LEFT")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d/%d\t%d\t%.1f\n",
			s.ID, s.Username, s.Status, s.Progress, s.DownloadedPosts, s.TotalPosts, s.StoriesCount, s.MinutesLeft(now))
	}
	return w.Flush()
}

func runSessionsCleanup(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !cleanupExpired {
		return fmt.Errorf("name at least one session id or pass --expired")
	}
	a, err := openSessions()
	if err != nil {
		return err
	}
	defer a.Close()

	// Load already removes expired snapshots and their media
	stats, err := a.sessions.Load(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if cleanupExpired {
		fmt.Fprintf(out, "Removed %d expired session(s)\n", stats.Expired+a.sessions.Sweep())
	}

	var failed int
	for _, id := range args {
		if a.sessions.Cleanup(id) {
			fmt.Fprintf(out, "Removed %s\n", id)
		} else {
			fmt.Fprintf(out, "Failed to remove %s\n", id)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d session(s) could not be removed", failed)
	}
	return nil
}
