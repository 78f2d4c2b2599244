package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"ironbook/internal/events"
	"ironbook/internal/exchange"
)

const (
	defaultWorkers    = 10
	defaultReadBuffer = 64 * 1024
)

// connLine links one decoded command to the connection it arrived on, for
// handoff from a worker goroutine to the single-threaded dispatch loop —
// adapted from the teacher's ClientMessage{clientAddress, message}.
type connLine struct {
	sess *Session
	cmd  Command
}

// Server is the JSON-lines TCP front end over one exchange.Exchange,
// grounded on the teacher's internal/net/server.go Server: same
// listener/worker-pool/session-handler split, same tomb-based shutdown.
type Server struct {
	address string
	port    int
	xchg    *exchange.Exchange
	bus     *events.Bus

	pool     WorkerPool
	sessions *sessionTable
	lines    chan connLine
	cancel   context.CancelFunc
}

// New constructs a Server bound to address:port, dispatching commands into
// xchg and subscribe/unsubscribe commands into bus.
func New(address string, port int, xchg *exchange.Exchange, bus *events.Bus) *Server {
	return &Server{
		address:  address,
		port:     port,
		xchg:     xchg,
		bus:      bus,
		pool:     NewWorkerPool(defaultWorkers),
		sessions: newSessionTable(),
		lines:    make(chan connLine, 1),
	}
}

// Run listens until ctx is cancelled, per the teacher's Server.Run shape.
func (s *Server) Run(ctx context.Context) {
	defer s.shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})
	t.Go(func() error {
		return s.dispatchLoop(t)
	})

	log.Info().Str("address", listener.Addr().String()).Msg("adapter listening")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
			s.pool.AddTask(conn)
		}
	}
}

func (s *Server) shutdown() {
	log.Info().Msg("adapter shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// dispatchLoop is the single-threaded command processor: every command
// runs against the exchange on this one goroutine, so the synchronous core
// never has to reason about concurrent callers from the adapter itself.
func (s *Server) dispatchLoop(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case cl := <-s.lines:
			resp := s.handleCommand(cl.sess, cl.cmd)
			cl.sess.writeResponse(resp)
		}
	}
}

// handleConnection reads newline-delimited JSON commands off conn until it
// closes or t is dying. It answers "connect" itself; every other command
// from a connected session is decoded into a connLine and handed to
// dispatchLoop. Adapted from the teacher's
// handleConnection, generalized from one-read-per-task to a persistent
// per-connection reader since JSON-lines framing has no fixed message size.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return errImproperConversion
	}
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, defaultReadBuffer), defaultReadBuffer)

	var sess *Session
	for scanner.Scan() {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		var cmd Command
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			log.Error().Err(err).Msg("malformed command")
			continue
		}

		if cmd.Type == "connect" {
			sess = s.sessions.Connect(cmd.User, conn)
			sess.writeResponse(Response{OK: true, Command: "connect", Payload: sess.connectionID})
			continue
		}
		if sess == nil {
			continue
		}
		s.lines <- connLine{sess: sess, cmd: cmd}
	}
	if sess != nil {
		s.sessions.Disconnect(sess.user, sess.connectionID)
	}
	return nil
}

var errImproperConversion = errors.New("improper type conversion")
