package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"iganalyzer/pkg/session"
)

var (
	analyzeLimit int
	analyzeKeep  bool
	analyzeJSON  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <profile-url>",
	Short: "Analyze one profile in the foreground",
	Long: `Analyze one profile without starting the server.

The profile, its latest posts and up to three stories are downloaded into
the media directory and the engagement analytics are printed. The session
is removed afterwards unless --keep is set.`,
	Example: `  iganalyzer analyze https://www.instagram.com/natgeo/
  iganalyzer analyze natgeo --limit 6 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().IntVarP(&analyzeLimit, "limit", "n", 0, "number of posts to analyze (default 12)")
	analyzeCmd.Flags().BoolVar(&analyzeKeep, "keep", false, "keep the session and its media after printing")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the whole session as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(map[string]interface{}{"limit": analyzeLimit})
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds, err := resolveCredentials(cfg, log, accountName)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, log, creds)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.service.AnalyzeAndWait(ctx, args[0], cfg.Jobs.PostLimit)
	if err != nil {
		return err
	}
	if !analyzeKeep {
		defer a.sessions.Cleanup(sess.ID)
	}

	out := cmd.OutOrStdout()
	if analyzeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	}

	if sess.Status != session.StatusCompleted {
		return fmt.Errorf("analysis failed: %s", sess.Error)
	}
	printSummary(cmd, sess)
	return nil
}

func printSummary(cmd *cobra.Command, sess *session.Session) {
	out := cmd.OutOrStdout()
	if p := sess.Profile; p != nil {
		fmt.Fprintf(out, "@%s (%s)\n", p.Username, p.FullName)
		fmt.Fprintf(out, "  followers %d, following %d, posts %d\n", p.Followers, p.Followees, p.PostsCount)
	}
	if an := sess.Analytics; an != nil {
		fmt.Fprintf(out, "  posts analyzed       %d (%d images, %d videos)\n", an.TotalPostsAnalyzed, an.ImagePosts, an.VideoPosts)
		fmt.Fprintf(out, "  avg likes/post       %.2f\n", an.AverageLikes)
		fmt.Fprintf(out, "  avg comments/post    %.2f\n", an.AverageComments)
		fmt.Fprintf(out, "  avg engagement rate  %.2f%%\n", an.AverageEngagementRate)
		fmt.Fprintf(out, "  engagement/follower  %.4f\n", an.EngagementPerFollower)
	}
	fmt.Fprintf(out, "  stories              %d\n", sess.StoriesCount)
	if analyzeKeep {
		fmt.Fprintf(out, "  session              %s\n", sess.ID)
	}
}
