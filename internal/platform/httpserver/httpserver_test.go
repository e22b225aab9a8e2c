package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	srv := New(":8080", http.NotFoundHandler(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, ":8080", srv.Addr)
	assert.Equal(t, 3*time.Minute, srv.WriteTimeout)
	assert.NotNil(t, srv.ErrorLog)

	assert.Nil(t, New(":8080", http.NotFoundHandler(), nil).ErrorLog)
}
