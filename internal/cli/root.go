// Package cli defines the cobra commands of the listsync client.
package cli

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"listsync/internal/syncagent"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	password  string
	verbose   bool
	version   = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "listsync",
	Short: "Shared checklists from the terminal",
	Long: `listsync creates and edits shared checklists and follows them live.
Every change made here is relayed to everyone viewing the same list.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.WarnLevel)
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaultServer := os.Getenv("LISTSYNC_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "Base URL of the listsync server")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Password for protected lists")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log connection details to stderr")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
}

func newAPIClient() *syncagent.APIClient {
	c := syncagent.NewAPIClient(serverURL)
	c.Password = password
	return c
}

// websocketURL maps the server's base URL to its /ws endpoint.
func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", base, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL %q: unsupported scheme %q", base, u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
