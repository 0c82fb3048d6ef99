package gateway

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-voice-gateway/internal/protocol"
	"ai-voice-gateway/internal/service/capture"
	"ai-voice-gateway/internal/service/session"
)

// conn pumps one websocket. The read side runs on the handler goroutine; a
// single writer goroutine owns every data frame so events reach the client
// in emission order.
type conn struct {
	cfg     Config
	ws      *websocket.Conn
	machine *session.Machine
	stream  *capture.ClientStream
	closeFn func(cause error)
	logger  zerolog.Logger

	// closing is set once the writer gives up on the session; the read
	// deadline is no longer extended by client traffic after that.
	closing atomic.Bool
}

func (c *conn) serve() {
	c.logger.Info().Msg("Client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump()
	c.closeFn(session.ErrConnectionLost)

	select {
	case <-writerDone:
	case <-time.After(c.cfg.CloseTimeout):
		c.logger.Warn().Msg("Writer did not finish before close timeout")
	}
	c.ws.Close()

	c.logger.Info().Msg("Client disconnected")
}

func (c *conn) readPump() {
	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	c.extendDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})

	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
		c.extendDeadline()

		switch typ {
		case websocket.BinaryMessage:
			c.machine.Session().Touch()
			if c.stream != nil {
				c.stream.Feed(data)
			}
		case websocket.TextMessage:
			msg, perr := protocol.Parse(data)
			if perr != nil {
				msg = protocol.Invalid{Err: perr}
			}
			switch err := c.machine.Offer(msg); {
			case err == nil:
			case errors.Is(err, session.ErrInboundFull):
				c.logger.Warn().Type("message", msg).Msg("Inbound queue full, message dropped")
			case errors.Is(err, session.ErrSessionClosed):
				// Keep reading so the close handshake can complete.
			default:
				return
			}
		}
	}
}

func (c *conn) extendDeadline() {
	if c.closing.Load() {
		return
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	out := c.machine.Outbound()
	for {
		select {
		case ev, ok := <-out:
			if !ok {
				c.writeClose()
				return
			}
			data, err := ev.Marshal()
			if err != nil {
				c.logger.Error().Err(err).Str("type", ev.Type).Msg("Failed to encode event")
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn().Err(err).Msg("WebSocket write failed")
				c.closeFn(session.ErrConnectionLost)
				c.abortRead()
				c.drain(out)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug().Err(err).Msg("Ping failed")
				c.closeFn(session.ErrConnectionLost)
				c.abortRead()
				c.drain(out)
				return
			}
		}
	}
}

func (c *conn) writeClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
	// Bound the wait for the peer's close reply, even if it keeps sending.
	c.closing.Store(true)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.CloseTimeout))
	time.AfterFunc(c.cfg.CloseTimeout, func() { _ = c.ws.Close() })
}

// abortRead unblocks the reader after the connection has failed.
func (c *conn) abortRead() {
	c.closing.Store(true)
	_ = c.ws.SetReadDeadline(time.Now())
}

// drain discards the remaining events so the machine never blocks on a dead
// connection.
func (c *conn) drain(out <-chan protocol.Event) {
	for range out {
	}
}
