package hub

import (
	"bufio"
	"context"
	"errors"
	"net"
)

// Server exposes the hub as a newline-delimited JSON feed over plain TCP.
type Server struct {
	Addr string
	Hub  *Hub
}

func NewServer(addr string, h *Hub) *Server {
	return &Server{Addr: addr, Hub: h}
}

// Run accepts subscribers until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.Hub.log.Info("tcp feed listening", "addr", ln.Addr().String())
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}

		s.Hub.AddTCP(conn)
		go func(c net.Conn) {
			defer s.Hub.RemoveTCP(c)
			sc := bufio.NewScanner(c)
			for sc.Scan() {
			}
		}(conn)
	}
}
