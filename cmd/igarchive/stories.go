package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"igarchive/pkg/ui"
)

// storiesCmd represents the stories command
var storiesCmd = &cobra.Command{
	Use:   "stories <username>",
	Short: "Archive the current live stories of a profile",
	Long: `Download the profile's current live story feed into Stories/.

Stories already archived are skipped. A story that later reappears in
a highlight will be copied from here instead of downloaded again.`,
	Example: `  igarchive stories natgeo`,
	Args: cobra.ExactArgs(1),
	Run:  runStories,
}

// highlightCmd represents the highlight command
var highlightCmd = &cobra.Command{
	Use:   "highlight <username> <highlight-id>",
	Short: "Archive one highlight of a profile",
	Long: `Download the items of a single highlight. The highlight's folder name
and cover are reconciled with upstream first, so renamed highlights
keep a single folder.`,
	Example: `  igarchive highlight natgeo 17895485201104054`,
	Args: cobra.ExactArgs(2),
	Run:  runHighlight,
}

// highlightsCmd represents the highlights command
var highlightsCmd = &cobra.Command{
	Use:   "highlights <username>",
	Short: "Archive every highlight of a profile",
	Example: `  igarchive highlights natgeo`,
	Args: cobra.ExactArgs(1),
	Run:  runHighlights,
}

func init() {
	rootCmd.AddCommand(storiesCmd)
	rootCmd.AddCommand(highlightCmd)
	rootCmd.AddCommand(highlightsCmd)
}

func runStories(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		exitWith(err)
	}
	defer a.Close()

	report, err := a.engine.DownloadLiveStories(strings.TrimSpace(args[0]))
	if err != nil {
		exitWith(err)
	}
	ui.PrintInfo("Live stories", reelSummary(report))
}

func runHighlight(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		exitWith(err)
	}
	defer a.Close()

	highlightID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		exitWith(err)
	}

	report, err := a.engine.DownloadHighlight(strings.TrimSpace(args[0]), highlightID)
	if err != nil {
		exitWith(err)
	}
	ui.PrintInfo("Highlight "+report.Title, reelSummary(report))
}

func runHighlights(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		exitWith(err)
	}
	defer a.Close()

	reports, err := a.engine.DownloadAllHighlights(strings.TrimSpace(args[0]))
	if err != nil {
		exitWith(err)
	}
	if len(reports) == 0 {
		ui.PrintWarning("Profile has no highlights")
		return
	}
	for _, report := range reports {
		ui.PrintInfo("Highlight "+report.Title, reelSummary(&report))
	}
}
