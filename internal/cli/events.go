package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tasklift/autopilot/internal/db"
	"github.com/tasklift/autopilot/internal/models"
)

var (
	eventsType   string
	eventsEntity string
	eventsSince  string
	eventsLimit  int
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "filter by event type (e.g. swap.completed)")
	eventsCmd.Flags().StringVar(&eventsEntity, "entity", "", "filter by entity id")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "only events at or after this time (RFC3339 or duration like 2h)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum number of events")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event journal",
	Long:  "Query the append-only event journal of swaps, breaches, and task lifecycle.",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		query := db.EventQuery{Limit: eventsLimit}
		if eventsType != "" {
			eventType := models.EventType(eventsType)
			query.Type = &eventType
		}
		if eventsEntity != "" {
			query.EntityID = &eventsEntity
		}
		if eventsSince != "" {
			since, err := parseSince(eventsSince)
			if err != nil {
				return err
			}
			query.Since = &since
		}

		repo := db.NewEventRepository(database)
		found, err := repo.Query(context.Background(), query)
		if err != nil {
			return fmt.Errorf("failed to query events: %w", err)
		}

		if IsJSONOutput() {
			return WriteOutput(os.Stdout, found)
		}

		if len(found) == 0 {
			fmt.Fprintln(os.Stdout, "No events found.")
			return nil
		}

		rows := make([][]string, 0, len(found))
		for _, e := range found {
			payload := "-"
			if len(e.Payload) > 0 {
				payload = string(e.Payload)
			}
			rows = append(rows, []string{
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				string(e.Type),
				e.EntityID,
				payload,
			})
		}
		return writeTable(os.Stdout, []string{"TIME", "TYPE", "ENTITY", "PAYLOAD"}, rows)
	},
}

func parseSince(value string) (time.Time, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return time.Now().Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --since value %q (use RFC3339 or a duration like 2h)", value)
}
