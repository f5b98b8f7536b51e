package ui

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const pingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// live pushes the rendered table to the browser every time the controller reports a change.
func (s *Server) live(writer http.ResponseWriter, request *http.Request) {
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()
	if !s.track() {
		return
	}
	defer s.conns.Done()

	updates, unsubscribe := s.controller.Subscribe()
	defer unsubscribe()

	if err := s.push(request.Context(), conn, updates); err != nil {
		slog.Info("live connection closed", "err", err)
	}
}

func (s *Server) push(ctx context.Context, conn *websocket.Conn, updates <-chan struct{}) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		// Nothing is expected from the browser; reading detects the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer wg.Wait()
	defer conn.Close()

	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-updates:
			if err := s.writeTable(conn); err != nil {
				return err
			}
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second*5)); err != nil {
				return fmt.Errorf("failed to ping: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return s.ctx.Err()
		}
	}
}

func (s *Server) writeTable(conn *websocket.Conn) error {
	var buff bytes.Buffer
	if err := s.controller.WriteTable(&buff); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, buff.Bytes()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
