package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login_change.html":
			_ = r.ParseForm()
			if r.PostForm.Get("user_name") == "admin" {
				http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "abc", Path: "/"})
			}
			w.WriteHeader(http.StatusOK)
		case "/api/xml":
			if c, err := r.Cookie("BREEZESESSION"); err == nil {
				_, _ = io.WriteString(w, "session="+c.Value+"&action="+r.URL.Query().Get("action"))
				return
			}
			if c, err := r.Cookie("session_id"); err == nil {
				_, _ = io.WriteString(w, "web="+c.Value)
				return
			}
			_, _ = io.WriteString(w, "anonymous")
		case "/preview.jpg":
			if _, err := r.Cookie("session_id"); err != nil {
				http.Redirect(w, r, "/login.html", http.StatusFound)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
		case "/login.html":
			_, _ = io.WriteString(w, "<html>login</html>")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := NewSessionClient(srv.URL, HTTPOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	body, err := c.Get(ctx, "/api/xml", "action=common-info")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", string(body))

	page, err := c.Fetch(ctx, c.URL("/preview.jpg", ""))
	require.NoError(t, err)
	assert.Equal(t, "/login.html", page.Path)

	status, err := c.PostForm(ctx, "/login_change.html", url.Values{"user_name": {"admin"}, "password": {"x"}, "ok": {"OK"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "abc", c.Cookie("session_id"))
	body, err = c.Get(ctx, "api/xml", "")
	require.NoError(t, err)
	assert.Equal(t, "web=abc", string(body))
	page, err = c.Fetch(ctx, c.URL("/preview.jpg", ""))
	require.NoError(t, err)
	assert.Equal(t, "/preview.jpg", page.Path)
	assert.Equal(t, "image/jpeg", page.ContentType)

	require.NoError(t, c.Reset())
	c.SetCookie("BREEZESESSION", "breez1")
	body, err = c.Get(ctx, "/api/xml", "action=sco-info")
	require.NoError(t, err)
	assert.Equal(t, "session=breez1&action=sco-info", string(body))

	_, err = c.Get(ctx, "/missing", "password=secret")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.NotContains(t, err.Error(), "secret")
	assert.Equal(t, srv.URL+"/api/xml?a=1", c.URL("/api/xml", "a=1"))
}

func TestSessionClient_HonorsDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(3 * time.Second):
		}
		_, _ = io.WriteString(w, "late")
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewSessionClient(srv.URL, HTTPOptions{Timeout: 10 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = c.Get(ctx, "/api/xml", "action=common-info")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
