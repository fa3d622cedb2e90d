package web

import (
	"bytes"
	"context"
	"net/http"

	"github.com/emiliopalmerini/splango/internal/goals"
	"github.com/emiliopalmerini/splango/internal/request"
)

const (
	// SessionCookie carries the visitor's subject id.
	SessionCookie = "splango_subject"
	// IdentityHeader carries the identity known when the request starts.
	IdentityHeader = "X-Splango-Identity"

	sessionMaxAge = 365 * 24 * 60 * 60
)

type managerKey struct{}

// cookieSession reads the bound subject from the request cookie and remembers
// rebinding so the cookie can be rewritten before the response goes out.
type cookieSession struct {
	id      string
	changed bool
}

func (c *cookieSession) SubjectID() string { return c.id }

func (c *cookieSession) BindSubject(id string) {
	if id != c.id {
		c.id = id
		c.changed = true
	}
}

// bufferedResponse holds the handler's response until queued commands are applied.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

// visitor wraps h with a request manager bound to the visitor's session. Queued
// commands and identity reconciliation run after h returns and before anything is
// written, so a failure there replaces the handler's response.
func (s *Server) visitor(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := &cookieSession{}
		if c, err := r.Cookie(SessionCookie); err == nil {
			sess.id = c.Value
		}

		mgr := request.NewManager(s.services, sess, r.Header.Get(IdentityHeader), goals.ExtractRequestInfo(r))
		ctx := context.WithValue(r.Context(), managerKey{}, mgr)

		buf := newBufferedResponse()
		h(buf, r.WithContext(ctx))

		finishErr := mgr.Finish(r.Context())

		if sess.changed {
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    sess.id,
				Path:     "/",
				MaxAge:   sessionMaxAge,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		if finishErr != nil {
			s.writeError(w, finishErr)
			return
		}

		for k, v := range buf.header {
			w.Header()[k] = v
		}
		if buf.status == 0 {
			buf.status = http.StatusOK
		}
		w.WriteHeader(buf.status)
		_, _ = w.Write(buf.body.Bytes())
	})
}

// managerFrom returns the request manager installed by visitor.
func managerFrom(ctx context.Context) *request.Manager {
	mgr, _ := ctx.Value(managerKey{}).(*request.Manager)
	return mgr
}
