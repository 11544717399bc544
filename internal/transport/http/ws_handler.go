package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Aswin1819/talkmate-server/internal/config"
	"github.com/Aswin1819/talkmate-server/internal/core"
	"github.com/Aswin1819/talkmate-server/internal/proto"
	"github.com/Aswin1819/talkmate-server/internal/utils"
)

const (
	// joinTimeout bounds how long a connection may sit idle before
	// sending its initial join frame.
	joinTimeout = 10 * time.Second
	// pingInterval drives the liveness heartbeat in the write loop.
	pingInterval = 30 * time.Second
)

// WSHandler upgrades room connections and bridges them to the
// lifecycle controller.
type WSHandler struct {
	controller *core.Controller
	cfg        *config.Config
	log        *zerolog.Logger
	limiter    *rateLimiter
}

// NewWSHandler builds a new room websocket handler.
func NewWSHandler(controller *core.Controller, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	limiter := newRateLimiter(cfg.ConnectsPerMinute)
	limiter.startReset(make(chan struct{}))
	return &WSHandler{
		controller: controller,
		cfg:        cfg,
		log:        logger,
		limiter:    limiter,
	}
}

// Handle serves GET /ws/rooms/:room_id. The identity is supplied by the
// auth middleware; the first client frame must be a join envelope
// carrying the credential for private rooms.
func (h *WSHandler) Handle(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown room"})
		return
	}

	identity := core.Identity{
		UserID:   c.GetInt64(ContextKeyUserID),
		Username: c.GetString(ContextKeyUsername),
	}

	if !h.limiter.allow() {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many connection attempts"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx := c.Request.Context()
	client := core.NewClient(utils.NewID(), identity, h.cfg.EventQueueSize)

	join, err := h.readJoin(ctx, conn)
	if err != nil {
		h.log.Debug().Err(err).Int64("user_id", identity.UserID).Msg("join handshake failed")
		_ = wsjson.Write(ctx, conn, proto.Outbound{
			Type:      proto.OutboundTypeError,
			Error:     "join required",
			ErrorCode: core.ErrCodeMalformedMessage,
		})
		conn.Close(websocket.StatusPolicyViolation, "join required")
		return
	}

	sess, err := h.controller.Connect(ctx, identity, roomID, join.Password, client)
	if err != nil {
		code := core.ErrorCode(err)
		h.log.Info().Str("code", code).Int64("room_id", roomID).Int64("user_id", identity.UserID).
			Msg("connection rejected")
		_ = wsjson.Write(ctx, conn, proto.Outbound{
			Type:      proto.OutboundTypeError,
			Error:     err.Error(),
			ErrorCode: code,
		})
		conn.Close(websocket.StatusPolicyViolation, code)
		return
	}

	// The request context dies with the socket; the leave sequence must
	// still run, and runs at most once per membership.
	defer h.controller.Disconnect(context.Background(), sess, client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readJoin reads the initial join envelope within the handshake window.
func (h *WSHandler) readJoin(ctx context.Context, conn *websocket.Conn) (*proto.Inbound, error) {
	joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()

	var join proto.Inbound
	if err := wsjson.Read(joinCtx, conn, &join); err != nil {
		return nil, err
	}
	if join.Type != proto.InboundTypeJoin {
		return nil, core.ErrMalformedMessage
	}
	return &join, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session, client *core.Client) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("malformed inbound payload")
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:      proto.OutboundTypeError,
				Error:     "invalid message format",
				ErrorCode: core.ErrCodeMalformedMessage,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}

		if reply := h.route(ctx, sess, client, inbound); reply != nil {
			if writeErr := wsjson.Write(ctx, conn, *reply); writeErr != nil {
				return writeErr
			}
		}
	}
}

// route dispatches one inbound envelope. It returns a non-nil error
// envelope for recoverable protocol mistakes; the connection stays open
// either way.
func (h *WSHandler) route(ctx context.Context, sess *core.Session, client *core.Client, inbound proto.Inbound) *proto.Outbound {
	from := client.Identity

	switch inbound.Type {
	case proto.InboundTypeChatMessage:
		h.controller.HandleChat(ctx, sess, from, inbound.Message)
		return nil

	case proto.InboundTypeWebRTCOffer:
		return h.relaySignal(sess, from, core.EventSignalOffer, inbound.TargetUserID, inbound.Offer)

	case proto.InboundTypeWebRTCAnswer:
		return h.relaySignal(sess, from, core.EventSignalAnswer, inbound.TargetUserID, inbound.Answer)

	case proto.InboundTypeWebRTCICECandidate:
		return h.relaySignal(sess, from, core.EventSignalCandidate, inbound.TargetUserID, inbound.Candidate)

	case proto.InboundTypeToggleMute:
		if inbound.IsMuted == nil {
			return malformedReply("is_muted is required")
		}
		h.controller.HandleToggle(ctx, sess, from, core.FlagMuted, *inbound.IsMuted)
		return nil

	case proto.InboundTypeToggleVideo:
		if inbound.VideoEnabled == nil {
			return malformedReply("video_enabled is required")
		}
		h.controller.HandleToggle(ctx, sess, from, core.FlagVideoEnabled, *inbound.VideoEnabled)
		return nil

	case proto.InboundTypeRaiseHand:
		if inbound.HandRaised == nil {
			return malformedReply("hand_raised is required")
		}
		h.controller.HandleToggle(ctx, sess, from, core.FlagHandRaised, *inbound.HandRaised)
		return nil

	case proto.InboundTypeRequestAudioConnection:
		if inbound.TargetUserID == 0 {
			return malformedReply("target_user_id is required")
		}
		if err := h.controller.HandleAudioConnectRequest(sess, from, inbound.TargetUserID); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("audio connect request dropped")
		}
		return nil

	case proto.InboundTypeJoin:
		return malformedReply("already joined")

	default:
		h.log.Debug().Str("type", inbound.Type).Str("conn_id", client.ID).Msg("unknown message type")
		return malformedReply("unknown message type")
	}
}

// relaySignal forwards one opaque signaling payload. A target outside
// the room is dropped silently; only structural mistakes are answered.
func (h *WSHandler) relaySignal(sess *core.Session, from core.Identity, kind core.EventKind, target int64, payload json.RawMessage) *proto.Outbound {
	if target == 0 || len(payload) == 0 {
		return malformedReply("target_user_id and payload are required")
	}
	if err := h.controller.HandleSignal(sess, from, kind, target, payload); err != nil {
		h.log.Debug().Err(err).Int64("from", from.UserID).Int64("target", target).
			Msg("signal dropped")
	}
	return nil
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func malformedReply(msg string) *proto.Outbound {
	return &proto.Outbound{
		Type:      proto.OutboundTypeError,
		Error:     msg,
		ErrorCode: core.ErrCodeMalformedMessage,
	}
}
