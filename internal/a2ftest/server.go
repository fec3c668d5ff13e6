// Package a2ftest runs the Audio2Face mock behind an httptest server.
package a2ftest

import (
	"net/http/httptest"
	"testing"

	"github.com/skypro1111/a2f-stream-service/internal/a2fmock"
)

const (
	KindPush = a2fmock.KindPush
	KindAct  = a2fmock.KindAct
)

// Server is a running mock; its URL is the Audio2Face base URL.
type Server struct {
	*httptest.Server
	*a2fmock.Mock
}

// NewServer starts a mock that accepts everything until configured otherwise.
// It is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	mock := a2fmock.New(nil, a2fmock.Options{})
	s := &Server{
		Server: httptest.NewServer(mock),
		Mock:   mock,
	}
	t.Cleanup(s.Server.Close)

	return s
}
