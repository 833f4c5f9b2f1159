package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

// NewEventsCmd groups commands over the run event topic.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect published run events",
	}
	cmd.AddCommand(newEventsTailCmd())
	return cmd
}

func newEventsTailCmd() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow matching.completed events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			kc := cliCtx.Config.Kafka
			if !kc.Enabled {
				return errors.New(errors.ErrCodeValidation, "kafka is not enabled; set kafka.enabled")
			}
			if group != "" {
				kc.ConsumerGroup = group
			}

			consumer, err := kafka.NewConsumer(kc, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer consumer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			asJSON := cliCtx.OutputFormat == "json"
			return consumer.Run(ctx, func(_ context.Context, env *kafka.EventEnvelope) error {
				return printEvent(cmd.OutOrStdout(), env, asJSON)
			})
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "consumer group (overrides kafka.consumer_group)")
	return cmd
}

// printEvent writes env as one line. Unknown event types are printed with
// their envelope fields only.
func printEvent(w io.Writer, env *kafka.EventEnvelope, asJSON bool) error {
	if asJSON {
		_, err := fmt.Fprintf(w, "%s\n", env.Payload)
		return err
	}
	if env.EventType != matching.EventTypeMatchingCompleted {
		_, err := fmt.Fprintf(w, "%s %s %s\n", env.Timestamp.Format("2006-01-02T15:04:05Z07:00"), env.EventType, env.EventID)
		return err
	}

	var ev matching.MatchingCompletedEvent
	if err := env.DecodePayload(&ev); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s run=%s scopes=%d matched=%d/%d rate=%s report=%s\n",
		env.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		ev.RunID,
		ev.Summary.Scopes,
		ev.Summary.MatchedBOM,
		ev.Summary.TotalBOM,
		formatRate(ev.Summary.MatchingRate),
		orDash(ev.ReportURI))
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
