// Package ircnet provides an in-process mock IRC server for driving
// transport.Conn and server.Server in tests without opening a real
// socket.
package ircnet

import (
	"bufio"
	"encoding"
	"io"
	"strings"
	"sync"
)

// NewServer creates a mock IRC peer that implements io.ReadWriteCloser.
// Lines written by the client under test arrive on the Lines channel;
// lines queued with WriteString or WriteMessage are delivered to the
// client's Read side. Callers must call Close when finished.
func NewServer() *Server {
	s := &Server{
		lines: make(chan string, 16),
	}
	s.sendReader, s.sendWriter = io.Pipe()
	s.recvReader, s.recvWriter = io.Pipe()
	go s.readIncoming()
	return s
}

// Server is a mock IRC server endpoint. The client under test dials it
// as an io.ReadWriteCloser; everything the client writes is split into
// lines and published on Lines, and everything queued for the client is
// delivered through Read.
type Server struct {
	lines chan string

	closeOnce  sync.Once
	recvReader *io.PipeReader
	recvWriter *io.PipeWriter
	sendReader *io.PipeReader
	sendWriter *io.PipeWriter
}

// Read implements the client's read side: bytes queued by WriteString
// or WriteMessage appear here.
func (s *Server) Read(p []byte) (int, error) {
	return s.sendReader.Read(p)
}

// Write implements the client's write side: everything the client sends
// is scanned into lines and delivered on Lines.
func (s *Server) Write(p []byte) (int, error) {
	return s.recvWriter.Write(p)
}

// Close shuts down both pipe halves. It is safe to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.recvWriter.Close()
		_ = s.sendWriter.Close()
		close(s.lines)
	})
	return err
}

// Lines returns the channel of lines received from the client, with the
// trailing CRLF stripped.
func (s *Server) Lines() <-chan string {
	return s.lines
}

// WriteString sends a raw line to the client, appending CRLF if missing.
func (s *Server) WriteString(line string) error {
	if !strings.HasSuffix(line, "\r\n") {
		line += "\r\n"
	}
	_, err := s.sendWriter.Write([]byte(line))
	return err
}

// WriteMessage marshals m and sends it to the client.
func (s *Server) WriteMessage(m encoding.TextMarshaler) error {
	b, err := m.MarshalText()
	if err != nil {
		return err
	}
	_, err = s.sendWriter.Write(b)
	return err
}

func (s *Server) readIncoming() {
	scanner := bufio.NewScanner(s.recvReader)
	for scanner.Scan() {
		s.lines <- scanner.Text()
	}
}
