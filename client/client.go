// Package client maintains a persistent connection to the memosync
// server: it joins one room at a time, re-requests state after every
// (re)join, and applies incoming snapshots last-writer-wins.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/knagata/memosync-server/proto"
)

// ErrNotJoined is returned by send helpers while no room is joined.
var ErrNotJoined = errors.New("no room joined")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("client closed")

// Handlers are invoked from the read loop; they must not block.
type Handlers struct {
	OnTextUpdate   func(content, fromUserID string)
	OnCanvasUpdate func(canvasData string)
	OnColorUpdate  func(color string)
	OnCursorMove   func(cursor proto.CursorMoveData)
	OnRoomCounts   func(counts map[string]int)
	OnRoomUsers    func(roomID string, users []proto.RoomUser)
	OnRequestSync  func(requesterID string)
	OnSyncResponse func(bundle proto.SyncBundle)
	OnRoomClosed   func(roomID string)
	OnJoinFailed   func(code, reason string)
	OnDisconnect   func(err error)
}

// Options configure a client connection.
type Options struct {
	// URL is the WebSocket endpoint, e.g. ws://host:8080/ws.
	URL string
	// Token is an optional identity token appended as ?token=.
	Token string
	// UserID and Username are the self-reported identity sent with
	// join requests when no token is used.
	UserID   string
	Username string

	// ReconnectAttempts bounds automatic reconnects after a dropped
	// connection. Defaults to 5, matching the original client.
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	Handlers Handlers
	Logger   *zerolog.Logger
}

// State is the locally reconciled shared state. Snapshots overwrite it
// wholesale; incremental updates patch single fields.
type State struct {
	Title       string
	Content     string
	CanvasData  string
	Color       string
	Category    string
	Attribution map[string]string
}

// Client is one participant connection.
type Client struct {
	opts Options
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex // serializes wsjson writes

	mu         sync.Mutex
	conn       *websocket.Conn
	joinedRoom string
	wantRoom   string
	wantPass   string
	synced     bool
	state      State
	closed     bool
}

// Dial connects to the server and starts the read loop. The returned
// client stays usable across reconnects until Close or ctx cancellation.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.ReconnectAttempts == 0 {
		opts.ReconnectAttempts = 5
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = time.Second
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Client{
		opts:   opts,
		log:    logger,
		ctx:    cctx,
		cancel: cancel,
	}

	conn, err := c.dialOnce(cctx)
	if err != nil {
		cancel()
		return nil, err
	}
	c.conn = conn

	go c.readLoop(conn)
	return c, nil
}

func (c *Client) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	url := c.opts.URL
	if c.opts.Token != "" {
		url += "?token=" + c.opts.Token
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	return conn, nil
}

// Close tears the connection down and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "bye")
	}
	return nil
}

// Join requests admission to a room, leaving the current one first.
// The result arrives asynchronously as join-success or join-failed.
func (c *Client) Join(roomID, password string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	prev := c.joinedRoom
	c.wantRoom = roomID
	c.wantPass = password
	c.mu.Unlock()

	if prev != "" && prev != roomID {
		if err := c.send(proto.TypeLeaveRoom, proto.RoomRefData{RoomID: prev}); err != nil {
			return err
		}
		c.mu.Lock()
		c.joinedRoom = ""
		c.synced = false
		c.mu.Unlock()
	}

	return c.sendJoinRequest(roomID, password)
}

func (c *Client) sendJoinRequest(roomID, password string) error {
	return c.send(proto.TypeJoinRequest, proto.JoinRequestData{
		RoomID:   roomID,
		Password: password,
		Username: c.opts.Username,
		UserID:   c.opts.UserID,
	})
}

// Leave exits the current room, if any.
func (c *Client) Leave() error {
	c.mu.Lock()
	room := c.joinedRoom
	c.joinedRoom = ""
	c.wantRoom = ""
	c.synced = false
	c.mu.Unlock()

	if room == "" {
		return nil
	}
	return c.send(proto.TypeLeaveRoom, proto.RoomRefData{RoomID: room})
}

// CloseRoom stops sharing; only succeeds for the room owner.
func (c *Client) CloseRoom() error {
	room := c.JoinedRoom()
	if room == "" {
		return ErrNotJoined
	}
	return c.send(proto.TypeCloseRoom, proto.RoomRefData{RoomID: room})
}

// JoinedRoom returns the currently joined room id, empty when idle.
func (c *Client) JoinedRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joinedRoom
}

// Synced reports whether a sync-response has been applied since the
// last join. A false value just means no peer has answered yet.
func (c *Client) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}

// Snapshot returns a copy of the reconciled shared state.
func (c *Client) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	if st.Attribution != nil {
		attr := make(map[string]string, len(st.Attribution))
		for k, v := range st.Attribution {
			attr[k] = v
		}
		st.Attribution = attr
	}
	return st
}

// SendTextUpdate broadcasts the full memo text to the other members.
func (c *Client) SendTextUpdate(content string) error {
	room := c.JoinedRoom()
	if room == "" {
		return ErrNotJoined
	}
	c.mu.Lock()
	c.state.Content = content
	c.mu.Unlock()
	return c.send(proto.TypeTextUpdate, proto.TextUpdateData{RoomID: room, Content: content})
}

// SendCanvasUpdate broadcasts a full whiteboard snapshot.
func (c *Client) SendCanvasUpdate(canvasData string) error {
	room := c.JoinedRoom()
	if room == "" {
		return ErrNotJoined
	}
	c.mu.Lock()
	c.state.CanvasData = canvasData
	c.mu.Unlock()
	return c.send(proto.TypeCanvasUpdate, proto.CanvasUpdateData{RoomID: room, CanvasData: canvasData})
}

// SendColorUpdate broadcasts a schedule color pick.
func (c *Client) SendColorUpdate(color string) error {
	room := c.JoinedRoom()
	if room == "" {
		return ErrNotJoined
	}
	c.mu.Lock()
	c.state.Color = color
	c.mu.Unlock()
	return c.send(proto.TypeColorUpdate, proto.ColorUpdateData{RoomID: room, Color: color})
}

// SendCursorMove reports the local pointer position.
func (c *Client) SendCursorMove(x, y float64, mode string) error {
	room := c.JoinedRoom()
	if room == "" {
		return ErrNotJoined
	}
	return c.send(proto.TypeCursorMove, proto.CursorMoveData{RoomID: room, X: x, Y: y, Mode: mode})
}

// SendSyncResponse answers a peer's sync request with a full snapshot.
func (c *Client) SendSyncResponse(targetID string, bundle proto.SyncBundle) error {
	return c.send(proto.TypeSyncResponse, proto.SyncResponseData{
		TargetID:   targetID,
		SyncBundle: bundle,
	})
}

// RequestSync asks peers for the current shared state.
func (c *Client) RequestSync() error {
	room := c.JoinedRoom()
	if room == "" {
		return ErrNotJoined
	}
	return c.send(proto.TypeRequestSync, proto.RoomRefData{RoomID: room})
}

func (c *Client) send(msgType string, data any) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return errors.New("not connected")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, proto.Inbound{Type: msgType, Data: payload})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var out proto.Outbound
		err := readOutbound(c.ctx, conn, &out)
		if err != nil {
			if c.reconnect(err) {
				return // new read loop took over
			}
			return
		}
		c.dispatch(out)
	}
}

// readOutbound decodes one server frame. Outbound.Data is typed per
// message kind, so frames are decoded in two steps.
func readOutbound(ctx context.Context, conn *websocket.Conn, out *proto.Outbound) error {
	var raw struct {
		Type  string          `json:"type"`
		Data  json.RawMessage `json:"data"`
		Error *proto.Error    `json:"error"`
	}
	if err := wsjson.Read(ctx, conn, &raw); err != nil {
		return err
	}
	out.Type = raw.Type
	out.Error = raw.Error
	out.Data = raw.Data
	return nil
}

func (c *Client) dispatch(out proto.Outbound) {
	h := c.opts.Handlers
	raw, _ := out.Data.(json.RawMessage)

	switch out.Type {
	case proto.TypeRoomCountsUpdate:
		var data proto.RoomCountsData
		if json.Unmarshal(raw, &data) == nil && h.OnRoomCounts != nil {
			h.OnRoomCounts(data.Counts)
		}

	case proto.TypeRoomUsersUpdate:
		var data proto.RoomUsersData
		if json.Unmarshal(raw, &data) == nil && h.OnRoomUsers != nil {
			h.OnRoomUsers(data.RoomID, data.Users)
		}

	case proto.TypeJoinSuccess:
		var data proto.JoinSuccessData
		if json.Unmarshal(raw, &data) != nil {
			return
		}
		c.mu.Lock()
		c.joinedRoom = data.RoomID
		c.synced = false
		c.mu.Unlock()
		c.log.Debug().Str("room", data.RoomID).Msg("joined room")
		// Freshly admitted sessions immediately ask peers for state.
		if err := c.RequestSync(); err != nil {
			c.log.Warn().Err(err).Msg("request-sync after join")
		}

	case proto.TypeJoinFailed:
		var data proto.JoinFailedData
		if json.Unmarshal(raw, &data) != nil {
			return
		}
		c.mu.Lock()
		c.joinedRoom = ""
		c.mu.Unlock()
		c.log.Warn().Str("room", data.RoomID).Str("code", data.Code).Msg("join failed")
		if h.OnJoinFailed != nil {
			h.OnJoinFailed(data.Code, data.Reason)
		}

	case proto.TypeTextUpdate:
		var data proto.TextUpdateData
		if json.Unmarshal(raw, &data) != nil {
			return
		}
		c.mu.Lock()
		c.state.Content = data.Content
		c.mu.Unlock()
		if h.OnTextUpdate != nil {
			h.OnTextUpdate(data.Content, data.UserID)
		}

	case proto.TypeCanvasUpdate:
		var data proto.CanvasUpdateData
		if json.Unmarshal(raw, &data) != nil {
			return
		}
		c.mu.Lock()
		c.state.CanvasData = data.CanvasData
		c.mu.Unlock()
		if h.OnCanvasUpdate != nil {
			h.OnCanvasUpdate(data.CanvasData)
		}

	case proto.TypeColorUpdate:
		var data proto.ColorUpdateData
		if json.Unmarshal(raw, &data) != nil {
			return
		}
		c.mu.Lock()
		c.state.Color = data.Color
		c.mu.Unlock()
		if h.OnColorUpdate != nil {
			h.OnColorUpdate(data.Color)
		}

	case proto.TypeCursorMove:
		var data proto.CursorMoveData
		if json.Unmarshal(raw, &data) == nil && h.OnCursorMove != nil {
			h.OnCursorMove(data)
		}

	case proto.TypeRequestSync:
		var data proto.RequestSyncData
		if json.Unmarshal(raw, &data) == nil && h.OnRequestSync != nil {
			h.OnRequestSync(data.RequesterID)
		}

	case proto.TypeSyncResponse:
		var data proto.SyncResponseData
		if json.Unmarshal(raw, &data) != nil {
			return
		}
		// Snapshots overwrite wholesale; if several peers answer, the
		// last one wins.
		c.mu.Lock()
		c.state = State{
			Title:       data.Title,
			Content:     data.Content,
			CanvasData:  data.CanvasData,
			Color:       data.Color,
			Category:    data.Category,
			Attribution: data.Attribution,
		}
		c.synced = true
		c.mu.Unlock()
		if h.OnSyncResponse != nil {
			h.OnSyncResponse(data.SyncBundle)
		}

	case proto.TypeRoomClosed:
		var data proto.RoomClosedData
		if json.Unmarshal(raw, &data) != nil {
			return
		}
		c.mu.Lock()
		c.joinedRoom = ""
		c.wantRoom = ""
		c.synced = false
		c.mu.Unlock()
		if h.OnRoomClosed != nil {
			h.OnRoomClosed(data.RoomID)
		}

	case proto.TypeError:
		if out.Error != nil {
			c.log.Warn().Str("code", out.Error.Code).Str("msg", out.Error.Msg).Msg("server error")
		}
	}
}

// reconnect re-dials after a dropped connection and re-joins the last
// room. Returns true when a new read loop has taken over.
func (c *Client) reconnect(cause error) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.joinedRoom = ""
	c.synced = false
	room := c.wantRoom
	pass := c.wantPass
	c.mu.Unlock()

	if c.opts.Handlers.OnDisconnect != nil {
		c.opts.Handlers.OnDisconnect(cause)
	}

	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(c.opts.ReconnectDelay):
		}

		conn, err := c.dialOnce(c.ctx)
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close(websocket.StatusNormalClosure, "bye")
			return false
		}
		c.conn = conn
		c.mu.Unlock()

		c.log.Info().Int("attempt", attempt).Msg("reconnected")
		go c.readLoop(conn)

		// Re-join and re-sync happen through the normal join flow.
		if room != "" {
			if err := c.sendJoinRequest(room, pass); err != nil {
				c.log.Warn().Err(err).Msg("re-join after reconnect")
			}
		}
		return true
	}

	c.log.Error().Err(cause).Msg("giving up after reconnect attempts")
	return false
}
