package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/recollsup/internal/config"
)

type errNotifier struct{ err error }

func (e errNotifier) Notify(context.Context, Notification) error { return e.err }

func TestNtfyPostsMessage(t *testing.T) {
	var (
		gotPath, gotTitle, gotAuth, gotPrio string
		gotBody                             []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		gotAuth = r.Header.Get("Authorization")
		gotPrio = r.Header.Get("Priority")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	n := FromConfig(config.NotifyConfig{NtfyURL: srv.URL + "/", Topic: "recoll", Token: "tok", Priority: "high"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := n.Notify(context.Background(), Notification{Title: "Recoll indexer stopped", Message: "gave up after 3 attempts", LastError: "exit code 1"})
	require.NoError(t, err)
	assert.Equal(t, "/recoll", gotPath)
	assert.Equal(t, "Recoll indexer stopped", gotTitle)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "high", gotPrio)
	assert.Equal(t, "gave up after 3 attempts\nLast error: exit code 1", string(gotBody))
}

func TestNtfyReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()
	err := (&Ntfy{Endpoint: srv.URL}).Notify(context.Background(), Notification{Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFromConfigWithoutURLOnlyLogs(t *testing.T) {
	var buf bytes.Buffer
	n := FromConfig(config.NotifyConfig{}, slog.New(slog.NewTextHandler(&buf, nil)))
	require.Len(t, n.(Multi), 1)
	require.NoError(t, n.Notify(context.Background(), Notification{Title: "gave up", Attempts: 3}))
	assert.Contains(t, buf.String(), "gave up")
	assert.Contains(t, buf.String(), "attempts=3")
}

func TestLatchAndMulti(t *testing.T) {
	l := &Latch{}
	boom := errors.New("boom")
	m := Multi{errNotifier{err: boom}, l, nil}
	err := m.Notify(context.Background(), Notification{Title: "t"})
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, l.Last())
	assert.Equal(t, "t", l.Last().Title)
	assert.Equal(t, 1, l.Count())
	l.Clear()
	assert.Nil(t, l.Last())
	assert.Equal(t, 1, l.Count())
}
