package periph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/korvolabs/korvod/internal/bus"
)

// buttonMessage is one remote button edge received over the websocket.
type buttonMessage struct {
	Button Button `json:"button"`
	Action string `json:"action"`
}

// RemoteFeed accepts websocket clients and republishes their button
// messages onto the event bus, standing in for the board's ADC buttons.
type RemoteFeed struct {
	addr   string
	bus    *bus.Bus
	logger *slog.Logger

	upgrader websocket.Upgrader
}

// NewRemoteFeed builds a feed listening on addr.
func NewRemoteFeed(addr string, b *bus.Bus, logger *slog.Logger) *RemoteFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteFeed{
		addr:   addr,
		bus:    b,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 512,
		},
	}
}

// Serve runs the HTTP listener until ctx is cancelled.
func (f *RemoteFeed) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/buttons", f.handleButtons)

	server := &http.Server{
		Addr:              f.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", f.addr)
	if err != nil {
		return fmt.Errorf("listen remote feed on %s: %w", f.addr, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	err = server.Serve(listener)
	wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// handleButtons upgrades one client and pumps its messages onto the bus.
func (f *RemoteFeed) handleButtons(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("remote feed upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	f.logger.Info("remote button client connected", "remote", conn.RemoteAddr().String())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.logger.Warn("remote button client error", "error", err.Error())
			}
			return
		}

		var msg buttonMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Warn("remote button message malformed", "error", err.Error())
			continue
		}
		if !msg.Button.Known() {
			f.logger.Warn("remote button unknown", "button", string(msg.Button))
			continue
		}

		switch msg.Action {
		case "press":
			Publish(f.bus, msg.Button, true)
		case "release":
			Publish(f.bus, msg.Button, false)
		default:
			f.logger.Warn("remote button action unknown", "action", msg.Action)
		}
	}
}
