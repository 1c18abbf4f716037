// Package session drives one client connection through the lobby-state /
// instance-state machine (spec.md §4.B): handshake, then loop between
// replying to lobby requests and forwarding messages into a joined
// instance's mailbox until the instance returns the sink or the
// connection closes.
package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/relayforge/hostess/internal/instance"
	"github.com/relayforge/hostess/internal/lobby"
	"github.com/relayforge/hostess/internal/wire"
)

// Conn is the duplex connection a transport hands to a session: exactly
// the Sink/Stream pair an Instance expects, plus teardown.
type Conn interface {
	instance.Sink
	instance.Stream
	Close() error
}

// Session owns one Conn for its lifetime. Run must be called exactly
// once.
type Session struct {
	conn   Conn
	lobby  *lobby.Lobby
	logger *slog.Logger
}

func New(conn Conn, lob *lobby.Lobby, logger *slog.Logger) *Session {
	return &Session{conn: conn, lobby: lob, logger: logger}
}

// Run blocks until the connection closes, an unrecoverable decode error
// occurs, or ctx is canceled.
func (s *Session) Run(ctx context.Context) error {
	hello, err := s.conn.Next()
	if err != nil {
		return err
	}
	if hello.Tag != wire.TagHello {
		return errors.New("session: first message was not Hello")
	}
	clientID, clientName := hello.ClientID, hello.ClientName
	logger := s.logger.With("client_id", clientID, "client_name", clientName)

	msgCh, errCh := s.pump()

	if err := s.conn.Send(wire.ServerMsg{Tag: wire.TagJoinedLobby}); err != nil {
		return err
	}
	logger.Info("session entered lobby state")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-errCh:
			return err

		case msg := <-msgCh:
			switch msg.Tag {
			case wire.TagRefreshInstances:
				reply := wire.ServerMsg{Tag: wire.TagInstances, InstanceList: s.lobby.List()}
				if err := s.conn.Send(reply); err != nil {
					return err
				}

			case wire.TagPing:
				if err := s.conn.Send(wire.ServerMsg{Tag: wire.TagPong, Tick: msg.Tick}); err != nil {
					return err
				}

			case wire.TagJoinInstance:
				inst, ok := s.lobby.Get(msg.InstanceID)
				if !ok {
					// spec.md §4.B step 2: unknown instance id, stay in lobby state.
					continue
				}
				if err := s.runInstanceState(ctx, inst, clientID, clientName, msgCh, errCh, logger); err != nil {
					return err
				}
				logger.Info("session returned to lobby state")

			default:
				// LeaveInstance/CustomMsg with nothing joined: no-op.
			}
		}
	}
}

// pump reads frames off the connection on a dedicated goroutine for the
// session's whole lifetime, so the same channel can be selected on both
// in lobby state and while a Transfer's return channel is also pending.
func (s *Session) pump() (<-chan wire.ClientMsg, <-chan error) {
	msgCh := make(chan wire.ClientMsg)
	errCh := make(chan error, 1)

	go func() {
		for {
			msg, err := s.conn.Next()
			if err != nil {
				errCh <- err
				return
			}
			msgCh <- msg
		}
	}()

	return msgCh, errCh
}

// runInstanceState transfers the sink to inst and forwards traffic until
// the instance returns it — on LeaveInstance, on the stream breaking, or
// on the instance itself terminating (spec.md §4.B step 3).
func (s *Session) runInstanceState(ctx context.Context, inst *instance.Instance, clientID uuid.UUID, clientName string, msgCh <-chan wire.ClientMsg, errCh <-chan error, logger *slog.Logger) error {
	// A mailbox send to a terminated instance counts as a leave: the
	// session goes back to lobby state instead of ending.
	leaveOnTerminated := func(err error) error {
		if errors.Is(err, instance.ErrTerminated()) {
			return nil
		}
		return err
	}

	ret, err := inst.Transfer(ctx, clientID, clientName, s.conn)
	if err != nil {
		return leaveOnTerminated(err)
	}
	logger.Info("session entered instance state", "instance_id", inst.ID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ret:
			// Either LeaveInstance was never sent and the instance itself
			// terminated, or capacity was rejected before any state changed
			// — either way the sink is back in our hands.
			return nil

		case err := <-errCh:
			_ = inst.NotifyLeft(context.Background(), clientID)
			<-ret
			return err

		case msg := <-msgCh:
			switch msg.Tag {
			case wire.TagCustomMsg:
				if err := inst.NotifyCustom(ctx, clientID, msg.Payload); err != nil {
					return leaveOnTerminated(err)
				}

			case wire.TagPing:
				if err := inst.NotifyPing(ctx, clientID, msg.Tick); err != nil {
					return leaveOnTerminated(err)
				}

			case wire.TagLeaveInstance:
				if err := inst.NotifyLeft(ctx, clientID); err != nil {
					return leaveOnTerminated(err)
				}
				<-ret
				return nil

			default:
				// Hello/JoinInstance/RefreshInstances make no sense mid-instance.
			}
		}
	}
}
