package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"listsync/internal/syncagent"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <slug>",
	Short: "Follow a list live",
	Long: `Join a list and print it every time someone changes it. The full list is
re-fetched after every (re)connect, so nothing is missed while offline.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	slug := args[0]
	if err := validateOutput(output); err != nil {
		return err
	}

	wsURL, err := websocketURL(serverURL)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := syncagent.New(syncagent.Options{
		URL:       wsURL,
		UserAgent: "listsync-cli/" + version,
		Fetcher:   newAPIClient(),
	})
	if err := a.Join(slug); err != nil {
		return err
	}

	return watch(ctx, a, slug, cmd)
}

// watch prints the list on every change until ctx ends, the join is
// rejected, or the agent gives up reconnecting.
func watch(ctx context.Context, a *syncagent.Agent, slug string, cmd *cobra.Command) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	for {
		select {
		case err := <-done:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err

		case n := <-a.Notifications():
			switch n.Kind {
			case syncagent.NotifySynced, syncagent.NotifyUpdate, syncagent.NotifyPresence:
				if err := render(out, output, viewFromState(slug, a.Snapshot())); err != nil {
					return err
				}
			case syncagent.NotifyState:
				fmt.Fprintf(errOut, "● %s\n", n.State)
			case syncagent.NotifyError:
				var joinErr *syncagent.JoinError
				if errors.As(n.Err, &joinErr) {
					cancel()
					<-done
					return joinErr
				}
				fmt.Fprintf(errOut, "warning: %v\n", n.Err)
			}
		}
	}
}
