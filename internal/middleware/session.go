package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/iliyamo/storefront/internal/apperr"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/utils"
)

const (
	ctxSession   = "session"
	storeTimeout = 5 * time.Second
)

// SessionStore persists sessions by id.
type SessionStore interface {
	Load(ctx context.Context, id string) (*model.Session, error)
	Save(ctx context.Context, s *model.Session) error
	Touch(ctx context.Context, id string) error
	Destroy(ctx context.Context, id string) error
	TTL() time.Duration
}

// SessionConfig configures the session middleware.
type SessionConfig struct {
	Store      SessionStore
	CookieName string
	Secure     bool
	Log        zerolog.Logger
	Now        func() time.Time
}

// sessionState travels with the request so handlers can rotate or destroy
// the session without knowing about the store.
type sessionState struct {
	cfg       *SessionConfig
	sess      *model.Session
	isNew     bool
	touched   bool
	destroyed bool
}

// Session attaches a session to every request. The cookie is read, the
// session loaded, and a fresh one created when the cookie is missing, the
// record is gone or the store cannot be read. Changes are written back just
// before the response headers go out.
func Session(cfg SessionConfig) echo.MiddlewareFunc {
	if cfg.CookieName == "" {
		cfg.CookieName = "sid"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			st := &sessionState{cfg: &cfg}
			if ck, err := c.Cookie(cfg.CookieName); err == nil && ck.Value != "" {
				st.sess = cfg.load(c, ck.Value)
			}
			if st.sess == nil {
				id, err := utils.NewToken()
				if err != nil {
					return apperr.Fault(err, "generate session id")
				}
				st.sess = model.NewSession(id, cfg.Now())
				st.isNew = true
				cfg.setCookie(c, id)
			}
			c.Set(ctxSession, st)
			c.Response().Before(func() { st.persist(c) })

			err := next(c)
			if !c.Response().Committed {
				st.persist(c)
			}
			return err
		}
	}
}

func (cfg *SessionConfig) load(c echo.Context, id string) *model.Session {
	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()
	s, err := cfg.Store.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrSessionNotFound) {
			cfg.Log.Warn().Err(err).Msg("session: load failed, starting a new one")
		}
		return nil
	}
	return s
}

func (cfg *SessionConfig) setCookie(c echo.Context, id string) {
	c.SetCookie(&http.Cookie{
		Name:     cfg.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(cfg.Store.TTL() / time.Second),
	})
}

func (cfg *SessionConfig) expireCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// persist writes a changed session, or refreshes the TTL of an unchanged
// one.
func (st *sessionState) persist(c echo.Context) {
	if st.destroyed || st.sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), storeTimeout)
	defer cancel()
	if st.sess.Dirty() {
		if err := st.cfg.Store.Save(ctx, st.sess); err != nil {
			st.cfg.Log.Error().Err(err).Msg("session: save failed")
		}
		return
	}
	if !st.isNew && !st.touched {
		st.touched = true
		if err := st.cfg.Store.Touch(ctx, st.sess.ID); err != nil {
			st.cfg.Log.Warn().Err(err).Msg("session: touch failed")
		}
	}
}

func stateFrom(c echo.Context) *sessionState {
	st, _ := c.Get(ctxSession).(*sessionState)
	return st
}

// SessionFrom returns the request's session, or nil outside the middleware.
func SessionFrom(c echo.Context) *model.Session {
	if st := stateFrom(c); st != nil {
		return st.sess
	}
	return nil
}

// RotateSession moves the session to a fresh id and reissues the cookie.
// Called on login so a pre-login id cannot be reused.
func RotateSession(c echo.Context) error {
	st := stateFrom(c)
	if st == nil {
		return apperr.Fault(errors.New("no session on request"), "rotate session")
	}
	id, err := utils.NewToken()
	if err != nil {
		return apperr.Fault(err, "generate session id")
	}
	old := st.sess.ID
	st.sess.Rotate(id)
	st.cfg.setCookie(c, id)

	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()
	if err := st.cfg.Store.Destroy(ctx, old); err != nil {
		st.cfg.Log.Warn().Err(err).Msg("session: destroy of rotated id failed")
	}
	return nil
}

// DestroySession deletes the session record and expires the cookie. It is
// safe to call on a session that was never saved.
func DestroySession(c echo.Context) error {
	st := stateFrom(c)
	if st == nil || st.destroyed {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()
	if err := st.cfg.Store.Destroy(ctx, st.sess.ID); err != nil {
		return apperr.Fault(err, "destroy session")
	}
	st.destroyed = true
	st.cfg.expireCookie(c)
	return nil
}
