package push

import (
	"context"
	"net/http"

	"storefront/config"
	"storefront/internal/errors"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
)

// brokerMessage is one frame delivered on a subscription. Err is set when
// the subscription ended abnormally.
type brokerMessage struct {
	Destination string
	Body        []byte
	Err         error
}

// brokerSubscription is one active destination subscription.
type brokerSubscription interface {
	Messages() <-chan brokerMessage
	Unsubscribe() error
}

// brokerSession is an established broker connection. The concrete
// implementation speaks STOMP over a websocket; tests substitute fakes.
type brokerSession interface {
	Send(destination, contentType string, body []byte) error
	Subscribe(destination string) (brokerSubscription, error)
	Disconnect() error
}

// dialFunc establishes a broker session, bounded by ctx.
type dialFunc func(ctx context.Context, cfg *config.PushConfig, authToken string) (brokerSession, error)

type stompSession struct {
	conn   *stomp.Conn
	wsConn *wsConn
}

type stompSubscription struct {
	sub      *stomp.Subscription
	messages chan brokerMessage
}

func (s *stompSubscription) Messages() <-chan brokerMessage { return s.messages }

func (s *stompSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *stompSession) Send(destination, contentType string, body []byte) error {
	return s.conn.Send(destination, contentType, body)
}

func (s *stompSession) Subscribe(destination string) (brokerSubscription, error) {
	sub, err := s.conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", destination)
	}

	wrapped := &stompSubscription{sub: sub, messages: make(chan brokerMessage)}
	go func() {
		defer close(wrapped.messages)
		for msg := range sub.C {
			if msg == nil {
				return
			}
			wrapped.messages <- brokerMessage{
				Destination: msg.Destination,
				Body:        msg.Body,
				Err:         msg.Err,
			}
			if msg.Err != nil {
				return
			}
		}
	}()

	return wrapped, nil
}

func (s *stompSession) Disconnect() error {
	err := s.conn.Disconnect()
	_ = s.wsConn.Close()

	return err
}

// dialSTOMP opens the websocket transport and completes the STOMP
// handshake. The whole sequence is bounded by ctx: expiry closes the
// transport underneath the pending handshake.
func dialSTOMP(ctx context.Context, cfg *config.PushConfig, authToken string) (brokerSession, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+authToken)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "websocket dial rejected with status %d", resp.StatusCode)
		}

		return nil, errors.Wrap(err, "websocket dial")
	}

	conn := newWSConn(ws)

	type handshakeResult struct {
		conn *stomp.Conn
		err  error
	}
	done := make(chan handshakeResult, 1)

	go func() {
		stompConn, handshakeErr := stomp.Connect(conn,
			stomp.ConnOpt.HeartBeat(cfg.HeartBeat, cfg.HeartBeat),
			stomp.ConnOpt.Header("Authorization", "Bearer "+authToken),
		)
		done <- handshakeResult{conn: stompConn, err: handshakeErr}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			_ = conn.Close()

			return nil, errors.Wrap(res.err, "stomp connect")
		}

		return &stompSession{conn: res.conn, wsConn: conn}, nil

	case <-ctx.Done():
		// Closing the transport unblocks the pending handshake read.
		_ = conn.Close()
		<-done

		return nil, ctx.Err()
	}
}
