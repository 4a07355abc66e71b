package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"palaver/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type gateway interface {
	Connect(userID string) *Session
	Disconnect(s *Session)
}

// EventHandler processes one client event for a session.
type EventHandler func(s *Session, data json.RawMessage)

// DispatchTable maps client event names to typed handlers. Registration is
// validated up front so a typo fails at construction instead of becoming a
// silent no-op at runtime.
type DispatchTable struct {
	handlers map[string]EventHandler
}

func NewDispatchTable() *DispatchTable {
	return &DispatchTable{handlers: make(map[string]EventHandler)}
}

func (d *DispatchTable) Register(event string, handler EventHandler) {
	if event == "" {
		panic("ws: cannot register empty event name")
	}
	if handler == nil {
		panic(fmt.Sprintf("ws: nil handler for event %q", event))
	}
	if _, ok := d.handlers[event]; ok {
		panic(fmt.Sprintf("ws: duplicate handler for event %q", event))
	}
	d.handlers[event] = handler
}

// Dispatch routes one client event. Unknown event names are ignored.
func (d *DispatchTable) Dispatch(s *Session, ev models.ClientEvent) {
	handler, ok := d.handlers[ev.Event]
	if !ok {
		slog.Debug("ignoring unknown client event", "event", ev.Event, "user_id", s.UserID())
		return
	}
	handler(s, ev.Data)
}

type Connection struct {
	ws         wsConnection
	hub        gateway
	table      *DispatchTable
	session    *Session
	fromClient chan models.ClientEvent
	errorCh    chan error
}

func NewConnection(
	hub gateway,
	table *DispatchTable,
	ws wsConnection,
	userID string,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		table:      table,
		session:    hub.Connect(userID),
		fromClient: make(chan models.ClientEvent),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Disconnect(c.session)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpEvents(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpEvents(ctx context.Context) error {
	for {
		var ev models.ClientEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			return err
		}
		select {
		case c.fromClient <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case ev := <-c.fromClient:
			c.table.Dispatch(c.session, ev)
		case ev, ok := <-c.session.Events():
			if !ok {
				return nil
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
