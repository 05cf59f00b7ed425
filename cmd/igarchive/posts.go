package main

import (
	"strings"

	"github.com/spf13/cobra"

	"igarchive/pkg/ui"
)

// postsCmd represents the posts command
var postsCmd = &cobra.Command{
	Use:   "posts <username>",
	Short: "Archive a profile's posts",
	Long: `Discover and download the profile's posts.

Discovery walks the post grid newest first and stops at the last post
seen on a previous run, so repeated runs only fetch what is new. Posts
whose download was interrupted are finished before anything else.`,
	Example: `  igarchive posts natgeo`,
	Args: cobra.ExactArgs(1),
	Run:  makeRunPosts(false),
}

// taggedCmd represents the tagged command
var taggedCmd = &cobra.Command{
	Use:   "tagged <username>",
	Short: "Archive posts the profile is tagged in",
	Example: `  igarchive tagged natgeo`,
	Args: cobra.ExactArgs(1),
	Run:  makeRunPosts(true),
}

func init() {
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(taggedCmd)
}

func makeRunPosts(isTag bool) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			exitWith(err)
		}
		defer a.Close()

		crawl, err := a.engine.CrawlProfilePosts(strings.TrimSpace(args[0]), isTag)
		if err != nil {
			exitWith(err)
		}

		label := "Posts"
		if isTag {
			label = "Tagged"
		}
		ui.PrintInfo(label, crawlSummary(crawl))
	}
}
