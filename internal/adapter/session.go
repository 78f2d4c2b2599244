package adapter

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ironbook/internal/errs"
	"ironbook/internal/messages"
)

// Session is one connected client: a user name, a connection id, and the
// TCP connection responses and pushed events are written to. Implements
// events.MessageSubscriber so it can be registered directly with the
// message publisher.
type Session struct {
	user         string
	connectionID string
	conn         net.Conn

	writeMu sync.Mutex
}

func newSession(user string, conn net.Conn) *Session {
	return &Session{
		user:         user,
		connectionID: uuid.NewString(),
		conn:         conn,
	}
}

func (s *Session) writeResponse(r Response) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	enc := json.NewEncoder(s.conn)
	if err := enc.Encode(r); err != nil {
		log.Error().Err(err).Str("user", s.user).Msg("failed writing response to client")
	}
}

// OnFill implements events.MessageSubscriber.
func (s *Session) OnFill(f messages.Fill) {
	s.writeResponse(Response{OK: true, Topic: "fill", Payload: f})
}

// OnCancel implements events.MessageSubscriber.
func (s *Session) OnCancel(c messages.Cancel) {
	s.writeResponse(Response{OK: true, Topic: "cancel", Payload: c})
}

// OnMarketState implements events.MessageSubscriber.
func (s *Session) OnMarketState(m messages.MarketStateMsg) {
	s.writeResponse(Response{OK: true, Topic: "market_state", Payload: m})
}

// sessionTable is the connect/disconnect registry, guarded the way the
// teacher's internal/net/server.go guards clientSessions: one mutex, atomic
// add/delete, snapshot-then-dispatch for anything that fans out.
type sessionTable struct {
	mu       sync.Mutex
	byConnID map[string]*Session
}

func newSessionTable() *sessionTable {
	return &sessionTable{byConnID: make(map[string]*Session)}
}

// Connect registers a new session for user and returns it; the session
// carries its freshly generated connection id.
func (t *sessionTable) Connect(user string, conn net.Conn) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess := newSession(user, conn)
	t.byConnID[sess.connectionID] = sess
	return sess
}

// Disconnect removes connectionID, failing with InvalidConnectionId if it
// is not a live session, or UserNotConnected if it belongs to a different
// user than claimed.
func (t *sessionTable) Disconnect(user, connectionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.byConnID[connectionID]
	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrInvalidConnectionID, connectionID)
	}
	if sess.user != user {
		return fmt.Errorf("%w: %s", errs.ErrUserNotConnected, user)
	}
	delete(t.byConnID, connectionID)
	return nil
}

