package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"igarchive/internal/worker"
	"igarchive/pkg/engine"
	"igarchive/pkg/ui"
)

var updateAll bool

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Start archiving a profile",
	Long: `Add a profile to the archive. Its metadata and avatar are fetched and
a directory skeleton is created. Run 'update' afterwards to archive
stories, highlights and posts.

Adding an already archived profile refreshes its metadata instead.`,
	Example: `  # Start archiving a profile
  igarchive add natgeo`,
	Args: cobra.ExactArgs(1),
	Run:  runAdd,
}

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update [username]",
	Short: "Run a full archive pass for one or all profiles",
	Long: `Update runs the whole pipeline for a profile: metadata, live stories,
every highlight, posts and tagged posts. Private profiles stop after
the metadata stage.

With --all, every archived profile is updated; --workers controls how
many run concurrently.`,
	Example: `  # Update one profile
  igarchive update natgeo

  # Update everything, four profiles at a time
  igarchive update --all --workers 4`,
	Args: cobra.MaximumNArgs(1),
	Run:  runUpdate,
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived profiles",
	Run:   runList,
}

func init() {
	updateCmd.Flags().BoolVar(&updateAll, "all", false, "update every archived profile")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(listCmd)
}

func runAdd(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		exitWith(err)
	}
	defer a.Close()

	username := strings.TrimSpace(args[0])
	sync, err := a.engine.AddProfile(username)
	if err != nil {
		exitWith(err)
	}

	switch sync.Status {
	case engine.StatusCreated:
		ui.PrintSuccess(fmt.Sprintf("Archiving %s (pk %d)", sync.Profile.Username, sync.Profile.PK))
	default:
		ui.PrintInfo("Already archived", sync.Profile.Username)
	}
}

func runUpdate(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		exitWith(err)
	}
	defer a.Close()

	if updateAll {
		runUpdateAll(a)
		return
	}
	if len(args) != 1 {
		exitWith(fmt.Errorf("a username is required unless --all is given"))
	}

	report, err := a.engine.UpdateProfile(strings.TrimSpace(args[0]))
	if err != nil {
		exitWith(err)
	}
	printUpdateReport(report)
}

func runUpdateAll(a *app) {
	profiles, err := a.engine.ListProfiles()
	if err != nil {
		exitWith(err)
	}
	if len(profiles) == 0 {
		ui.PrintWarning("Nothing archived yet; use 'add' first")
		return
	}

	usernames := make([]string, len(profiles))
	for i, p := range profiles {
		usernames[i] = p.Username
	}

	pool := worker.NewPool(a.cfg.Download.Workers, a.log)
	results := pool.Run(context.Background(), usernames, func(ctx context.Context, username string) error {
		_, err := a.engine.UpdateProfile(username)
		return err
	})

	failed := 0
	for _, username := range usernames {
		if err := results[username]; err != nil {
			failed++
			ui.PrintError(username, err)
		}
	}
	ui.PrintInfo("Profiles updated", fmt.Sprintf("%d of %d", len(usernames)-failed, len(usernames)))
}

func runList(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		exitWith(err)
	}
	defer a.Close()

	profiles, err := a.engine.ListProfiles()
	if err != nil {
		exitWith(err)
	}
	if len(profiles) == 0 {
		ui.PrintWarning("No profiles archived")
		return
	}

	for _, p := range profiles {
		visibility := "public"
		if p.IsPrivate {
			visibility = "private"
		}
		ui.PrintInfo(p.Username, fmt.Sprintf("pk %d, %d posts, %d followers, %s",
			p.PK, p.MediaCount, p.FollowerCount, visibility))
	}
	ui.PrintDivider()
	ui.PrintInfo("Total", fmt.Sprintf("%d profiles", len(profiles)))
}

func printUpdateReport(report *engine.UpdateReport) {
	ui.PrintInfo("Profile", fmt.Sprintf("%s (%s)", report.Profile.Profile.Username, report.Profile.Status))
	if report.SkippedPrivate {
		ui.PrintWarning("Profile is private; stories and posts were skipped")
		return
	}
	if report.LiveFeed != nil {
		ui.PrintInfo("Live stories", reelSummary(report.LiveFeed))
	}
	for _, highlight := range report.Highlights {
		ui.PrintInfo("Highlight "+highlight.Title, reelSummary(&highlight))
	}
	if report.Posts != nil {
		ui.PrintInfo("Posts", crawlSummary(report.Posts))
	}
	if report.Tagged != nil {
		ui.PrintInfo("Tagged", crawlSummary(report.Tagged))
	}
}

func reelSummary(r *engine.ReelReport) string {
	return fmt.Sprintf("%d current, %d downloaded, %d copied, %d failed",
		r.Seen, r.Downloaded, r.Copied, r.Failed)
}

func crawlSummary(c *engine.PostCrawl) string {
	return fmt.Sprintf("%d discovered, %d completed, %d failed",
		c.Discovered, c.Completed, c.Failed)
}
