package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/loupe-ai/loupe/internal/server"
)

var subscribeJSON bool

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <session-id>",
	Short: "Stream a session's events",
	Long: `Subscribe to a session over WebSocket and print its events as they
arrive. The first event replays the current session state. The stream
ends when the session is terminated or the connection drops.`,
	Args: exactArgs(1),
	RunE: runSubscribe,
}

func init() {
	subscribeCmd.Flags().BoolVar(&subscribeJSON, "json", false, "Print raw event JSON, one per line")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	id, err := parseSessionID(args[0])
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(),
		wsURL("/session/"+id.String()+"/subscribe"), nil)
	if err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	defer conn.Close()

	// Close the connection when the command context is canceled so the
	// read loop unblocks.
	go func() {
		<-cmd.Context().Done()
		conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || cmd.Context().Err() != nil {
				return nil
			}
			return fmt.Errorf("stream ended: %w", err)
		}

		if subscribeJSON {
			os.Stdout.Write(append(frame, '\n'))
			continue
		}

		var ev server.WireEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			continue
		}
		printEvent(ev)
	}
}

// printEvent renders one event for terminal output.
func printEvent(ev server.WireEvent) {
	switch ev.Type {
	case "reasoning.update":
		if m, ok := ev.Data.(map[string]any); ok {
			fmt.Printf("[reasoning] %v\n", m["text"])
			return
		}
	case "research.answer":
		if m, ok := ev.Data.(map[string]any); ok {
			fmt.Printf("\n# %v\n\n%v\n", m["title"], m["content"])
			return
		}
	case "tool.invoked":
		if m, ok := ev.Data.(map[string]any); ok {
			if summary, ok := m["summary"].(map[string]any); ok {
				fmt.Printf("[tool] %v\n", summary["summary"])
				return
			}
		}
	case "tool.failed":
		if m, ok := ev.Data.(map[string]any); ok {
			fmt.Printf("[tool failed] %v\n", m["error"])
			return
		}
	case "session.terminated":
		if m, ok := ev.Data.(map[string]any); ok {
			fmt.Printf("[terminated] %v\n", m["reason"])
			return
		}
	}
	fmt.Printf("[%s]\n", ev.Type)
}
