// Package server exposes the calculator registry over TCP. Each anet frame
// carries one JSON request, either a single calculator input object or an array
// of inputs executed as a batch, and is answered with the matching JSON result
// object or array.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	anetserver "github.com/andrei-cloud/anet/server"
	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/emv_studio/internal/calculator"
	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/internal/logging"
)

// logAdapter implements anet.Logger using zerolog.
type logAdapter struct{}

// Server wraps the anet TCP server and the calculator registry.
type Server struct {
	address     string
	srv         *anetserver.Server
	registry    *calculator.Registry
	activeConns int32
}

func (l logAdapter) Print(v ...any) {
	log.Info().Msg(fmt.Sprint(v...))
}

func (l logAdapter) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Warnf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

func (l logAdapter) Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

// NewServer configures the TCP server for registry r.
func NewServer(address string, r *calculator.Registry) (*Server, error) {
	cfg := &anetserver.ServerConfig{
		MaxConns:        100,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     0 * time.Second, // disable idle connection closure.
		ShutdownTimeout: 5 * time.Second,
		Logger:          logAdapter{},
	}

	s := &Server{
		address:  address,
		registry: r,
	}
	srv, err := anetserver.NewServer(address, anetserver.HandlerFunc(s.handle), cfg)
	if err != nil {
		return nil, fmt.Errorf("server setup failed: %w", err)
	}
	s.srv = srv

	return s, nil
}

// Start begins listening for connections.
func (s *Server) Start() error {
	log.Info().Str("address", s.address).Msg("server started")
	return s.srv.Start()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	return s.srv.Stop()
}

// malformed answers a frame that is not a calculator request.
func malformed(err error) []byte {
	res := calculator.Result{
		Error: fmt.Errorf("%w: malformed request: %w", errorcodes.ErrInvalidInput, err).Error(),
		Code:  errorcodes.ErrInvalidInput.Code,
	}
	out, _ := json.Marshal(res)

	return out
}

func (s *Server) handle(conn *anetserver.ServerConn, data []byte) ([]byte, error) {
	client := conn.Conn.RemoteAddr().String()
	atomic.AddInt32(&s.activeConns, 1)
	defer atomic.AddInt32(&s.activeConns, -1)

	start := time.Now()
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		log.Error().Str("client_ip", client).Msg("malformed request")
		return nil, errors.New("malformed request")
	}

	logging.LogRequest(client, len(data), int(atomic.LoadInt32(&s.activeConns)))

	resp, count := s.dispatch(context.Background(), data)

	logging.LogResponse(client, count, len(resp), time.Since(start), int(atomic.LoadInt32(&s.activeConns)))

	return resp, nil
}

// dispatch executes one frame and returns the encoded answer and the number of
// results it holds.
func (s *Server) dispatch(ctx context.Context, data []byte) ([]byte, int) {
	if data[0] == '[' {
		var inputs []calculator.Input
		if err := json.Unmarshal(data, &inputs); err != nil {
			return malformed(err), 0
		}
		results := s.registry.ExecuteBatch(ctx, inputs)
		out, err := json.Marshal(results)
		if err != nil {
			return malformed(err), 0
		}

		return out, len(results)
	}

	var in calculator.Input
	if err := json.Unmarshal(data, &in); err != nil {
		return malformed(err), 0
	}
	out, err := json.Marshal(s.registry.Execute(ctx, in))
	if err != nil {
		return malformed(err), 0
	}

	return out, 1
}
