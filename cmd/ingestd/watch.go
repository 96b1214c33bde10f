package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ingestd/marketfeed/internal/model"
)

// newWatchCommand adapts the teacher's cmd/decoder/main.go: a thin client
// that connects, subscribes, and pretty-prints decoded frames for manual
// verification of the WebSocket protocol.
func newWatchCommand() *cobra.Command {
	var addr string
	var symbols []string
	var exchange string
	var marketType string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to a running server and print decoded frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(addr, symbols, exchange, marketType)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "ws://localhost:8080/", "server WebSocket address")
	cmd.Flags().StringSliceVar(&symbols, "symbol", []string{"BTCUSDT"}, "symbols to subscribe to")
	cmd.Flags().StringVar(&exchange, "exchange", "BINANCE", "exchange")
	cmd.Flags().StringVar(&marketType, "market", "SPOT", "market type")
	return cmd
}

func runWatch(addr string, symbols []string, exchange, marketType string) error {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return fmt.Errorf("watch: dial %s: %w", addr, err)
	}
	defer conn.Close()

	for _, symbol := range symbols {
		cmd := model.Command{
			Action:     model.ActionSubscribe,
			Channel:    strings.ToUpper(symbol),
			Exchange:   exchange,
			MarketType: marketType,
		}
		raw, _ := json.Marshal(cmd)
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return fmt.Errorf("watch: subscribe %s: %w", symbol, err)
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("watch: connection ended: %w", err)
		}

		var ev model.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			fmt.Fprintf(os.Stderr, "watch: undecodable frame: %v\n", err)
			continue
		}
		fmt.Printf("[%s] %+v\n", ev.Kind, ev.Data)
	}
}
