package eventstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/gorilla/websocket"
)

// Peer tracks what one remote replica has already seen of the collection.
type Peer struct {
	collection *Collection
	state      *automerge.SyncState
}

func (c *Collection) NewPeer() *Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Peer{collection: c, state: automerge.NewSyncState(c.doc)}
}

func (p *Peer) receive(msg []byte) error {
	p.collection.mu.Lock()
	defer p.collection.mu.Unlock()
	_, err := p.state.ReceiveMessage(msg)
	return err
}

func (p *Peer) generate() ([]byte, bool) {
	p.collection.mu.Lock()
	defer p.collection.mu.Unlock()
	msg, valid := p.state.GenerateMessage()
	if msg == nil {
		return nil, false
	}
	return msg.Bytes(), valid
}

func readAndReceiveMessage(conn *websocket.Conn, peer *Peer) error {
	mt, p, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}
	if mt == websocket.BinaryMessage {
		if err := peer.receive(p); err != nil {
			return fmt.Errorf("failed to receive message: %w", err)
		}
	}
	return nil
}

func generateAndWriteMessages(conn *websocket.Conn, peer *Peer) error {
	for {
		msg, valid := peer.generate()
		if msg == nil {
			return nil
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
		if !valid {
			return nil
		}
	}
}

// Sync exchanges changes with the other end of conn until the context is cancelled or the connection fails. New
// local changes are offered every interval.
func Sync(ctx context.Context, conn *websocket.Conn, peer *Peer, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			if err := readAndReceiveMessage(conn, peer); err != nil {
				slog.Debug("sync reader stopped", "err", err)
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()
		if err := generateAndWriteMessages(conn, peer); err != nil {
			slog.Error(err.Error())
			return
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := generateAndWriteMessages(conn, peer); err != nil {
					slog.Error(err.Error())
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
}

// FetchCollection downloads the whole document of the store server at peerUrl. A replica must start from a peer's
// document rather than a fresh one or both would own a different events map.
func FetchCollection(ctx context.Context, peerUrl *url.URL) (*Collection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peerUrl.JoinPath("snapshot").String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body from get: %w", err)
	}
	c, err := LoadCollection(raw)
	if err != nil {
		return nil, err
	}
	slog.Info("established base doc", "url", peerUrl.String(), "heads", c.Heads())
	return c, nil
}

// Replicate keeps the collection in sync with the store server at peerUrl, reconnecting every interval after the
// connection drops.
func Replicate(ctx context.Context, c *Collection, peerUrl *url.URL, interval time.Duration) {
	u := *peerUrl.JoinPath("sync")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil); err != nil {
			slog.Error("failed to dial peer", "url", u.String(), "err", err)
		} else {
			slog.Info("syncing with peer", "url", u.String())
			Sync(ctx, conn, c.NewPeer(), interval)
			_ = conn.Close()
			slog.Info("finished sync", "heads", c.Heads())
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
	}
}
