package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kodblock/internal/client"
	"github.com/alfredjeanlab/kodblock/internal/codegen"
	"github.com/alfredjeanlab/kodblock/internal/events"
	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch <draft-id>",
	Short:   "Print a draft's expression whenever it changes",
	GroupID: "drafts",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			if r, ok := activeRemote(); ok {
				natsURL = r.NATSURL
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		w := &draftWatcher{id: args[0], client: builderClient, out: cmd.OutOrStdout()}
		done, err := w.refresh(ctx)
		if err != nil || done {
			return err
		}
		if natsURL != "" {
			return w.watchNATS(ctx, natsURL)
		}
		return w.watchPoll(ctx, interval)
	},
}

// draftWatcher re-fetches one draft and prints its expression when the
// draft's UpdatedAt moves.
type draftWatcher struct {
	id     string
	client client.BuilderClient
	out    io.Writer
	last   time.Time
}

// refresh reports done once the draft no longer exists.
func (w *draftWatcher) refresh(ctx context.Context) (bool, error) {
	d, err := w.client.GetDraft(ctx, w.id)
	if client.IsNotFound(err) {
		fmt.Fprintf(w.out, "%s %s\n", ui.RenderError("deleted"), w.id)
		return true, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return false, fmt.Errorf("getting draft %s: %w", w.id, err)
	}
	if d.UpdatedAt.Equal(w.last) {
		return false, nil
	}
	w.last = d.UpdatedAt
	w.print(d)
	return false, nil
}

func (w *draftWatcher) print(d *model.Draft) {
	if jsonOutput {
		_ = printJSON(w.out, d)
		return
	}
	expr := codegen.Serialize(d.Blocks, d.Mode)
	if expr == "" {
		expr = ui.RenderMuted("(empty expression)")
	}
	fmt.Fprintf(w.out, "%s %s  %s\n", ui.RenderMuted(d.UpdatedAt.Local().Format("15:04:05")), ui.RenderAccent(d.Name), expr)
}

// watchNATS re-fetches on every event for the draft, with a short debounce.
func (w *draftWatcher) watchNATS(ctx context.Context, natsURL string) error {
	reconnectCh := make(chan struct{}, 1)

	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	return w.watchEvents(ctx, sub, reconnectCh)
}

// watchEvents re-fetches whenever sub delivers an event for the draft, and
// right away after a reconnect.
func (w *draftWatcher) watchEvents(ctx context.Context, sub events.Subscriber, reconnectCh <-chan struct{}) error {
	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	debounce := time.NewTimer(0)
	debounce.Stop()
	select {
	case <-debounce.C:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if events.PayloadDraftID(data) == w.id {
				debounce.Reset(100 * time.Millisecond)
			}
		case <-reconnectCh:
			debounce.Reset(0)
		case <-debounce.C:
			done, err := w.refresh(ctx)
			if err != nil || done {
				return err
			}
		}
	}
}

func (w *draftWatcher) watchPoll(ctx context.Context, interval time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
		done, err := w.refresh(ctx)
		if err != nil || done {
			return err
		}
	}
}

func init() {
	watchCmd.Flags().Duration("interval", 2*time.Second, "poll interval when NATS is not configured")
	watchCmd.Flags().String("nats", os.Getenv("KODBLOCK_NATS_URL"), "NATS URL for event-driven updates")
}
