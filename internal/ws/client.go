package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"matchchat/internal/domain"
	"matchchat/internal/service"
	"matchchat/internal/session"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 32 * 1024
)

// client is the actor for one connection. Inbound events are handled one at
// a time on the read loop; everything outbound goes through the session's
// queue and the write loop.
type client struct {
	gw   *Gateway
	conn *websocket.Conn
	sess *session.Conn
	log  *zap.Logger
}

func (c *client) readPump(ctx context.Context) {
	idle := c.gw.IdleTimeout
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(idle)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(idle)) //nolint:errcheck
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read failed", zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(idle)) //nolint:errcheck
		if !c.dispatch(ctx, data) {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker((c.gw.IdleTimeout * 9) / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.sess.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.sess.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.sess.Close()
				return
			}

		case <-c.sess.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// dispatch handles one inbound event and reports whether the connection
// should stay open.
func (c *client) dispatch(ctx context.Context, data []byte) bool {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		c.sendError("", fmt.Errorf("malformed JSON: %w", domain.ErrInvalidInput))
		return true
	}
	eventType, _ := raw["type"].(string)
	userID := c.sess.UserID

	switch eventType {

	case eventJoin:
		var req roomRequest
		if err := decodeEvent(raw, &req); err != nil {
			c.sendError(eventType, err)
			return true
		}
		if _, err := c.gw.Registry.Join(ctx, c.sess, req.ConversationID); err != nil {
			c.sendError(eventType, err)
			return true
		}
		c.deliver(service.RoomEvent{Type: service.EventJoined, ConversationID: req.ConversationID})

	case eventLeave:
		var req roomRequest
		if err := decodeEvent(raw, &req); err != nil {
			c.sendError(eventType, err)
			return true
		}
		if err := c.gw.Registry.Leave(c.sess, req.ConversationID); err != nil {
			c.sendError(eventType, err)
			return true
		}
		c.deliver(service.RoomEvent{Type: service.EventLeft, ConversationID: req.ConversationID})

	case eventSend:
		var req sendRequest
		if err := decodeEvent(raw, &req); err != nil {
			c.sendError(eventType, err)
			return true
		}
		res, err := c.gw.Messages.Send(ctx, c.sess, service.SendInput{
			ConversationID:   req.ConversationID,
			Content:          req.Content,
			Type:             req.MessageType,
			ReplyToMessageID: req.ReplyToMessageID,
			ClientMessageID:  req.ClientMessageID,
		})
		if err != nil {
			if errors.Is(err, domain.ErrPersistence) {
				c.log.Error("send message failed", zap.String("user_id", userID), zap.Error(err))
			}
			c.sendError(eventType, err)
			return true
		}
		c.deliver(service.MessageAckEvent{
			Type:            service.EventMessageAck,
			ClientMessageID: req.ClientMessageID,
			ID:              res.Message.ID,
			Degraded:        res.Degraded,
			Duplicate:       res.Duplicate,
		})

	case eventTypingStart, eventTypingStop:
		var req roomRequest
		if err := decodeEvent(raw, &req); err != nil {
			c.sendError(eventType, err)
			return true
		}
		if err := c.gw.Presence.BroadcastTyping(ctx, c.sess, req.ConversationID, eventType == eventTypingStart); err != nil {
			c.sendError(eventType, err)
		}

	case eventMarkRead, eventMarkReadAlias:
		var req roomRequest
		if err := decodeEvent(raw, &req); err != nil {
			c.sendError(eventType, err)
			return true
		}
		if _, err := c.gw.Reads.MarkRead(ctx, userID, req.ConversationID); err != nil {
			c.sendError(eventType, err)
		}

	case eventPing:
		c.deliver(pongEvent{Type: "pong"})

	case eventLogout:
		c.log.Info("logout", zap.String("user_id", userID))
		return false

	default:
		c.log.Debug("unknown event type", zap.String("type", eventType), zap.String("user_id", userID))
		c.sendError(eventType, fmt.Errorf("unknown event type %q: %w", eventType, domain.ErrInvalidInput))
	}
	return true
}

func (c *client) deliver(payload any) {
	c.gw.Sessions.Deliver(c.sess, payload)
}

func (c *client) sendError(event string, err error) {
	c.deliver(errorEvent{
		Type:   "error",
		Event:  event,
		Reason: errorReason(err),
		Code:   errorCode(err),
	})
}
