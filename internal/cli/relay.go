package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listsync/internal/syncagent"
)

const relayTimeout = 10 * time.Second

// relay joins slug just long enough to send one committed change, so
// everyone viewing the list sees it without reloading.
func relay(ctx context.Context, slug string, send func(*syncagent.Agent) error) error {
	wsURL, err := websocketURL(serverURL)
	if err != nil {
		return err
	}

	a := syncagent.New(syncagent.Options{
		URL:                  wsURL,
		UserAgent:            "listsync-cli/" + version,
		MaxReconnectAttempts: 1,
	})
	if err := a.Join(slug); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	finish := func(err error) error {
		cancel()
		<-done
		return err
	}

	timeout := time.NewTimer(relayTimeout)
	defer timeout.Stop()

	for {
		select {
		case n := <-a.Notifications():
			if n.Kind == syncagent.NotifyState && n.State == syncagent.StateJoined {
				return finish(send(a))
			}
			var joinErr *syncagent.JoinError
			if n.Kind == syncagent.NotifyError && errors.As(n.Err, &joinErr) {
				return finish(joinErr)
			}
		case err := <-done:
			return fmt.Errorf("failed to reach the realtime server: %w", err)
		case <-timeout.C:
			return finish(errors.New("timed out joining the list"))
		}
	}
}
