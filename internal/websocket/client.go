package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var ErrClosed = errors.New("websocket closed")

type HandlerFunc func(data []byte) error

func Json[T any](j func(x T) error) HandlerFunc {
	return func(data []byte) error {
		var t T
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}

		return j(t)
	}
}

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	OnText      HandlerFunc
	OnBinary    HandlerFunc
	// OnClose is called once when the connection is gone.
	OnClose func()
	Logger  *slog.Logger
}

type Client struct {
	conn     net.Conn
	out      chan wsutil.Message
	done     chan struct{}
	doneOnce sync.Once
	onClose  func()
	logger   *slog.Logger
}

func (c *Client) setDone() {
	c.doneOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) WriteText(data []byte) error {
	return c.Write(ws.OpText, data)
}

func (c *Client) WriteBinary(data []byte) error {
	return c.Write(ws.OpBinary, data)
}

func (c *Client) Ping(data []byte) error {
	return c.Write(ws.OpPing, data)
}

func (c *Client) SendClose(code ws.StatusCode, reason string) error {
	return c.Write(ws.OpClose, ws.NewCloseFrameBody(code, reason))
}

// Close sends a close frame and waits for the peer to hang up. The connection
// is torn down when ctx expires first.
func (c *Client) Close(ctx context.Context) error {
	if err := c.SendClose(ws.StatusNormalClosure, "closing"); err != nil {
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.setDone()
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

func (c *Client) Write(opcode ws.OpCode, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Connect dials and handshakes within ctx. The connection then lives until
// Close is called or the peer goes away.
func Connect(ctx context.Context, config ClientConfig) (*Client, error) {

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("url", config.URL),
	)

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, buf, hs, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, err
	}
	logger.Debug("handshake complete", slog.String("protocol", hs.Protocol))

	if buf != nil {
		ws.PutReader(buf)
	}

	logger.Info("connected to websocket")

	var (
		input  = make(chan wsutil.Message, 1000)
		output = make(chan wsutil.Message, 1000)
	)

	client := &Client{
		conn:    conn,
		out:     output,
		done:    make(chan struct{}),
		onClose: config.OnClose,
		logger:  logger,
	}

	onTextFunc := config.OnText
	if onTextFunc == nil {
		onTextFunc = func(data []byte) error {
			return nil
		}
	}
	onBinaryFunc := config.OnBinary
	if onBinaryFunc == nil {
		onBinaryFunc = func(data []byte) error {
			return nil
		}
	}

	// websocket -> input channel
	go func() {
		defer client.setDone()
		for {
			messages, err := wsutil.ReadServerMessage(conn, nil)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return
				}
				var closed wsutil.ClosedError
				if errors.As(err, &closed) {
					logger.Debug("peer closed", slog.Any("code", closed.Code), slog.String("reason", closed.Reason))
					return
				}

				logger.Error("ws read failed", slog.Any("err", err))
				return
			}
			for _, msg := range messages {
				select {
				case input <- msg:
				case <-client.done:
					return
				}
			}
		}
	}()

	// output channel -> websocket
	go func() {
		for {
			select {
			case <-client.done:
				return
			case msg := <-output:
				err := wsutil.WriteClientMessage(conn, msg.OpCode, msg.Payload)
				if err != nil {
					logger.Error("message write error", slog.Any("err", err))
					client.setDone()
					return
				}
			}
		}
	}()

	// input channel processing
	go func() {
		for {
			select {
			case <-client.done:
				return
			case msg := <-input:

				if msg.OpCode.IsControl() {
					logger.Debug("rcv: control", slog.Any("opcode", msg.OpCode))

					if msg.OpCode == ws.OpClose {
						logger.Debug("rcv: close. closing client", slog.String("reason", string(msg.Payload)))
						client.setDone()
						return
					}

					if err := wsutil.HandleServerControlMessage(conn, msg); err != nil {
						logger.Error("handling of control messages failed", slog.Any("err", err))
					}
					continue
				}

				switch msg.OpCode {
				case ws.OpText:
					logger.Debug("rcv: text", slog.Int("len", len(msg.Payload)))
					if err := onTextFunc(msg.Payload); err != nil {
						logger.Error("text message handler failed", slog.Any("err", err))
					}

				case ws.OpBinary:
					logger.Debug("rcv: binary", slog.Int("len", len(msg.Payload)))
					if err := onBinaryFunc(msg.Payload); err != nil {
						logger.Error("binary message handler failed", slog.Any("err", err))
					}
				}
			}
		}
	}()

	return client, nil
}
