package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/knagata/memosync-server/internal/auth"
	"github.com/knagata/memosync-server/internal/core"
	"github.com/knagata/memosync-server/internal/metrics"
	"github.com/knagata/memosync-server/internal/utils"
	"github.com/knagata/memosync-server/proto"
)

// WSHandler upgrades HTTP connections and bridges them to core.Session.
type WSHandler struct {
	hub      *core.Hub
	tokenCfg *auth.TokenConfig
	limit    rate.Limit
	burst    int
	m        *metrics.Metrics
	log      *zerolog.Logger
}

// WSOptions configures the WebSocket endpoint.
type WSOptions struct {
	// TokenConfig enables identity token verification on `?token=`.
	// Nil means clients self-report identity at join time.
	TokenConfig *auth.TokenConfig
	// EventsPerSecond throttles inbound frames per connection; zero
	// disables throttling.
	EventsPerSecond int
	EventBurst      int
	Metrics         *metrics.Metrics
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, opts WSOptions, logger *zerolog.Logger) stdhttp.Handler {
	limit := rate.Inf
	if opts.EventsPerSecond > 0 {
		limit = rate.Limit(opts.EventsPerSecond)
	}
	burst := opts.EventBurst
	if burst <= 0 {
		burst = int(limit)
		if limit == rate.Inf {
			burst = 0
		}
	}
	return &WSHandler{
		hub:      hub,
		tokenCfg: opts.TokenConfig,
		limit:    limit,
		burst:    burst,
		m:        opts.Metrics,
		log:      logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sess := core.NewSession(utils.NewConnID(), "")

	if token := r.URL.Query().Get("token"); token != "" && h.tokenCfg != nil {
		claims, err := auth.ValidateToken(h.tokenCfg, token)
		if err != nil {
			h.log.Warn().Err(err).Msg("rejecting ws connection with bad token")
			conn.Close(websocket.StatusPolicyViolation, "invalid token")
			return
		}
		sess.UserID = claims.UserID
		if claims.Username != "" {
			sess.Name = claims.Username
		}
		sess.IdentityVerified = true
	}

	if h.m != nil {
		h.m.ConnectionsTotal.Inc()
		h.m.ActiveConnections.Inc()
		defer h.m.ActiveConnections.Dec()
	}

	h.hub.RegisterSession(sess)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	h.hub.UnregisterSession(sess)
	close(sess.Commands)

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	limiter := rate.NewLimiter(h.limit, h.burst)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		cmd, protoErr, err := inboundToCommand(sess, inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("conn_id", sess.ConnID).Msg("failed to decode inbound")
			return err
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.TypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		if cmd != nil {
			sess.Commands <- cmd
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		select {
		case event, ok := <-sess.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", sess.ConnID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
