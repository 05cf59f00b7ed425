package main

import (
	"github.com/spf13/cobra"

	"igarchive/pkg/session"
	"igarchive/pkg/ui"
)

// sessionCmd represents the session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage story API session tokens",
	Long: `Manage the access/refresh token pair the story API requires.

Tokens are stored in the system keychain when available, falling back
to an encrypted file inside the archive root. They rotate automatically
during normal use; 'set' is only needed to seed the first pair.

To get a pair, open the story mirror site in a browser and copy the
access-token and refresh-token cookie values.`,
}

// sessionSetCmd represents the session set command
var sessionSetCmd = &cobra.Command{
	Use:   "set <access-token> <refresh-token>",
	Short: "Store a session token pair",
	Args:  cobra.ExactArgs(2),
	Run:   runSessionSet,
}

// sessionShowCmd represents the session show command
var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show whether a session is stored",
	Run:   runSessionShow,
}

// sessionClearCmd represents the session clear command
var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored session tokens",
	Run:   runSessionClear,
}

func init() {
	sessionCmd.AddCommand(sessionSetCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionSet(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		exitWith(err)
	}
	defer a.Close()

	a.session.Update(session.Tokens{Access: args[0], Refresh: args[1]})
	if a.store == nil {
		ui.PrintWarning("No session store available; tokens apply to this run only")
		return
	}
	ui.PrintSuccess("Session tokens stored")
}

func runSessionShow(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		exitWith(err)
	}
	defer a.Close()

	if a.session.IsValid() {
		ui.PrintSuccess("A session token pair is present")
	} else {
		ui.PrintWarning("No session tokens; stories and highlights will fail until 'session set'")
	}
}

func runSessionClear(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		exitWith(err)
	}
	defer a.Close()

	if a.store == nil {
		ui.PrintWarning("No session store available")
		return
	}
	if err := a.store.Clear(); err != nil {
		exitWith(err)
	}
	ui.PrintSuccess("Session tokens removed")
}
