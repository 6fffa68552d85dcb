package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ravskel/conveyor/internal/events"
	"github.com/ravskel/conveyor/internal/mq"
)

// NewEventsCmd создаёт группу команд для потока событий.
//
// Единственная команда CLI, идущая мимо HTTP API: tail подписывается
// на exchange conveyor.events напрямую через RabbitMQ.
func NewEventsCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Lifecycle event stream",
	}

	cmd.AddCommand(newEventsTailCmd(outputFn))

	return cmd
}

func newEventsTailCmd(outputFn func() *Output) *cobra.Command {
	var mqURL string
	var pattern string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail lifecycle events from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			if mqURL == "" {
				mqURL = mq.URLFromEnv()
			}

			// Логи соединения не должны мешать потоку событий в stdout.
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelWarn,
			}))

			conn, err := mq.NewConnection(mqURL, logger)
			if err != nil {
				return fmt.Errorf("connect to RabbitMQ: %w", err)
			}
			defer conn.Close()

			tailer := mq.NewTailer(conn, logger, mq.TailerConfig{
				Pattern: pattern,
				Handler: func(_ context.Context, ev events.Event) error {
					out.Event(ev)
					return nil
				},
			})

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := tailer.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mqURL, "mq-url", "", "RabbitMQ URL (default: $RABBITMQ_URL)")
	cmd.Flags().StringVar(&pattern, "pattern", "#", "Routing key pattern (task.*, run.status, ...)")

	return cmd
}
