package showdown

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultSimURL = "wss://sim3.psim.us/showdown/websocket"

	roomlistPollInterval = 30 * time.Second
)

// RoomListener watches the simulator's room list over its websocket stream
// and reports battle room IDs for one format. A battle room that disappears
// from the list has ended and its replay is usually uploadable shortly
// after, so the listener is a cheap discovery feed for fresh battle IDs.
type RoomListener struct {
	simURL string
	format string
}

// NewRoomListener creates a listener for one format. A non-empty simURL
// overrides the public simulator endpoint.
func NewRoomListener(simURL, format string) *RoomListener {
	if simURL == "" {
		simURL = defaultSimURL
	}
	return &RoomListener{simURL: simURL, format: format}
}

type roomlistResponse struct {
	Rooms map[string]struct {
		P1 string `json:"p1"`
		P2 string `json:"p2"`
	} `json:"rooms"`
}

// Listen dials the simulator and pushes battle room IDs into out until the
// context is cancelled. Duplicate suppression is the consumer's job; the
// same battle shows up on every poll while it is running.
func (l *RoomListener) Listen(ctx context.Context, out chan<- string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, l.simURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial simulator: %w", err)
	}
	defer conn.Close()

	// The read loop owns the connection; the poll ticker only writes.
	go func() {
		ticker := time.NewTicker(roomlistPollInterval)
		defer ticker.Stop()
		query := []byte(fmt.Sprintf("|/cmd roomlist %s", l.format))
		if err := conn.WriteMessage(websocket.TextMessage, query); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, query); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("simulator read failed: %w", err)
		}
		for _, id := range parseRoomlistMessage(string(payload), l.format) {
			select {
			case out <- id:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// parseRoomlistMessage extracts battle room IDs for one format from a
// "|queryresponse|roomlist|{...}" protocol message.
func parseRoomlistMessage(payload, format string) []string {
	var ids []string
	for _, line := range strings.Split(payload, "\n") {
		rest, ok := strings.CutPrefix(line, "|queryresponse|roomlist|")
		if !ok {
			continue
		}
		var resp roomlistResponse
		if err := json.Unmarshal([]byte(rest), &resp); err != nil {
			log.Printf("[Rooms] Bad roomlist payload: %v", err)
			continue
		}
		prefix := "battle-" + format + "-"
		for room := range resp.Rooms {
			if strings.HasPrefix(room, prefix) {
				ids = append(ids, room)
			}
		}
	}
	return ids
}
