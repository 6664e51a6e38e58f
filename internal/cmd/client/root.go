package client

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRoot constructs the debug-client cobra command tree.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "nostrhub-cli",
		Short: "Debug client for a nostrhub relay",
	}
	root.AddCommand(newReqCommand())
	root.AddCommand(newPublishCommand())
	return root
}

func newReqCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "req",
		Short: "Open a REQ subscription and print incoming frames until EOSE",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			subID, _ := cmd.Flags().GetString("sub")
			filterJSON, _ := cmd.Flags().GetString("filter")

			conn, err := NewClient(url).Connect()
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer conn.Close()

			if err := conn.SendReq(subID, json.RawMessage(filterJSON)); err != nil {
				return fmt.Errorf("send req: %w", err)
			}

			for {
				frame, err := conn.ReadFrame()
				if err != nil {
					return fmt.Errorf("read frame: %w", err)
				}
				b, _ := json.Marshal(frame)
				fmt.Println(string(b))
				if len(frame) > 0 {
					var kind string
					_ = json.Unmarshal(frame[0], &kind)
					if kind == "EOSE" {
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().String("url", "ws://127.0.0.1:7777/", "relay websocket URL")
	cmd.Flags().String("sub", "debug", "subscription id")
	cmd.Flags().String("filter", "{}", "filter JSON")
	return cmd
}

func newPublishCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a signed event from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			path, _ := cmd.Flags().GetString("event")

			b, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read event file: %w", err)
			}

			conn, err := NewClient(url).Connect()
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer conn.Close()

			if err := conn.SendEvent(json.RawMessage(b)); err != nil {
				return fmt.Errorf("send event: %w", err)
			}

			frame, err := conn.ReadFrame()
			if err != nil {
				return fmt.Errorf("read ack: %w", err)
			}
			out, _ := json.Marshal(frame)
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().String("url", "ws://127.0.0.1:7777/", "relay websocket URL")
	cmd.Flags().String("event", "", "path to a signed event JSON file")
	return cmd
}
