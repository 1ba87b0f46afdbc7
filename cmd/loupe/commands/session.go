package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loupe-ai/loupe/internal/server"
)

// parseSessionID validates a session ID argument.
func parseSessionID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, usage(fmt.Errorf("invalid session ID %q", arg))
	}
	return id, nil
}

var messageCmd = &cobra.Command{
	Use:   "message <session-id> <text>",
	Short: "Send a follow-up message to a session",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		return newAPIClient().postJSON(ctx, "/session/"+id.String()+"/message",
			server.PostMessageRequest{Text: args[1]}, nil)
	},
}

var interruptCmd = &cobra.Command{
	Use:   "interrupt <session-id>",
	Short: "Interrupt a running session",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		return newAPIClient().postJSON(ctx, "/session/"+id.String()+"/interrupt", nil, nil)
	},
}

var terminateCmd = &cobra.Command{
	Use:   "terminate <session-id>",
	Short: "Terminate and purge a session",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		return newAPIClient().postJSON(ctx, "/session/"+id.String()+"/terminate", nil, nil)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show server status, or one session's state",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) > 1 {
			return usage(fmt.Errorf("accepts at most 1 arg, received %d", len(args)))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		client := newAPIClient()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(args) == 1 {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			var out json.RawMessage
			if err := client.getJSON(ctx, "/session/"+id.String(), &out); err != nil {
				return err
			}
			return enc.Encode(out)
		}

		var out server.StatusResponse
		if err := client.getJSON(ctx, "/status", &out); err != nil {
			return err
		}
		return enc.Encode(out)
	},
}
