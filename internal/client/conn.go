package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"questsync.dev/internal/protocol"
)

type Options struct {
	// URL is the server websocket endpoint, e.g. ws://127.0.0.1:8080/v1/quest/ws.
	URL      string
	PlayerID string
	// PlayerQueryParam names the query parameter carrying PlayerID.
	PlayerQueryParam string
	Logger           *log.Logger
	WriteTimeout     time.Duration
}

// Conn is a websocket session feeding a Mirror.
type Conn struct {
	ws     *websocket.Conn
	mirror *Mirror
	log    *log.Logger
	wt     time.Duration

	wmu  sync.Mutex
	done chan struct{}
	err  error
}

// Dial connects, sends the session-start state request and starts pumping
// snapshots into mirror.
func Dial(ctx context.Context, opts Options, mirror *Mirror) (*Conn, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	param := opts.PlayerQueryParam
	if param == "" {
		param = "player_id"
	}
	if opts.PlayerID != "" {
		q := u.Query()
		q.Set(param, opts.PlayerID)
		u.RawQuery = q.Encode()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	wt := opts.WriteTimeout
	if wt <= 0 {
		wt = 5 * time.Second
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status=%d)", u.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	c := &Conn{ws: ws, mirror: mirror, log: logger, wt: wt, done: make(chan struct{})}
	go c.readLoop()
	if err := c.RequestState(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) Mirror() *Mirror { return c.mirror }

func (c *Conn) SendAction(actionID string) error { return c.send(protocol.NewAction(actionID)) }
func (c *Conn) RequestState() error              { return c.send(protocol.NewStateRequest()) }
func (c *Conn) Reset() error                     { return c.send(protocol.NewReset()) }

func (c *Conn) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.wt))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Done is closed when the read loop exits.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the read loop, if any.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Conn) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				c.err = err
			}
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeQuestStateUpdate {
			c.log.Printf("ignore frame: type=%q err=%v", base.Type, err)
			continue
		}
		var upd protocol.StateUpdateMsg
		if err := json.Unmarshal(msg, &upd); err != nil {
			c.log.Printf("bad snapshot: %v", err)
			continue
		}
		c.mirror.Apply(upd)
	}
}
