// Package server speaks the Postgres simple-query protocol over TCP and
// drives the executor, one goroutine per connection.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/rs/zerolog/log"

	"github.com/alexhholmes/flint/config"
	"github.com/alexhholmes/flint/executor"
)

type Server struct {
	addr string
	exec *executor.Executor
}

func New(cfg config.Config, exec *executor.Executor) *Server {
	return &Server{addr: cfg.ListenAddr, exec: exec}
}

// Start listens and serves until the listener fails. Connections run
// concurrently, but note the engine below is single-writer; this front end
// only runs read-only plans, so no write races are reachable through it.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	log.Info().Str("addr", s.addr).Msg("listening for connections")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	log.Info().Str("remote", remote).Msg("connection accepted")

	backend := pgproto3.NewBackend(conn, conn)
	if err := s.handshake(conn, backend); err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("handshake failed")
		return
	}

	for {
		msg, err := backend.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Str("remote", remote).Msg("receive failed")
			}
			return
		}

		switch m := msg.(type) {
		case *pgproto3.Query:
			if err := s.handleQuery(backend, m.String); err != nil {
				log.Warn().Err(err).Str("remote", remote).Msg("send failed")
				return
			}
		case *pgproto3.Terminate:
			log.Info().Str("remote", remote).Msg("connection terminated")
			return
		default:
			// Only the simple query protocol is served.
			backend.Send(&pgproto3.ErrorResponse{
				Severity: "ERROR",
				Code:     "0A000",
				Message:  fmt.Sprintf("unsupported message type %T", msg),
			})
			backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
			if err := backend.Flush(); err != nil {
				return
			}
		}
	}
}

// handshake refuses TLS probes and completes the startup exchange.
func (s *Server) handshake(conn net.Conn, backend *pgproto3.Backend) error {
	for {
		startup, err := backend.ReceiveStartupMessage()
		if err != nil {
			return fmt.Errorf("receive startup message: %w", err)
		}

		switch startup.(type) {
		case *pgproto3.SSLRequest, *pgproto3.GSSEncRequest:
			if _, err := conn.Write([]byte{'N'}); err != nil {
				return fmt.Errorf("refuse encrypted startup: %w", err)
			}
		case *pgproto3.StartupMessage:
			backend.Send(&pgproto3.AuthenticationOk{})
			backend.Send(&pgproto3.ParameterStatus{Name: "server_version", Value: "14.0 (flint)"})
			backend.Send(&pgproto3.ParameterStatus{Name: "client_encoding", Value: "UTF8"})
			backend.Send(&pgproto3.BackendKeyData{ProcessID: uint32(os.Getpid())})
			backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
			return backend.Flush()
		default:
			return fmt.Errorf("unexpected startup message %T", startup)
		}
	}
}

func (s *Server) handleQuery(backend *pgproto3.Backend, query string) error {
	msgs, err := s.exec.Execute(query)
	if err != nil {
		backend.Send(&pgproto3.ErrorResponse{
			Severity: "ERROR",
			Code:     "0A000",
			Message:  err.Error(),
		})
	}
	for _, msg := range msgs {
		backend.Send(msg)
	}
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	return backend.Flush()
}
