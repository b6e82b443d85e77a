package auth

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/catalog"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/locale"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
)

// ProfileSource loads the profile row carrying the user's role.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID string) (catalog.Profile, error)
}

// RequireUser redirects anonymous requests to the localized login page, carrying the
// requested path in ?redirect=.
func RequireUser(v *Verifier, loginPath string) func(http.Handler) http.Handler {
	if loginPath == "" {
		loginPath = "/login"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := v.FromRequest(r)
			if err != nil {
				loc := locale.FromContext(r.Context())
				requestctx.Logger(r.Context()).Info("auth: redirecting to login", zap.String("reason", reason(err)))

				back := locale.Localize(loc, r.URL.Path)
				if r.URL.RawQuery != "" {
					back += "?" + r.URL.RawQuery
				}
				target := locale.Localize(loc, loginPath) + "?redirect=" + url.QueryEscape(back)
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireAdmin sends users without the admin role to the localized home page. It must run
// after RequireUser.
func RequireAdmin(profiles ProfileSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			home := locale.Localize(locale.FromContext(ctx), "/")

			user, ok := UserFromContext(ctx)
			if !ok || profiles == nil {
				http.Redirect(w, r, home, http.StatusFound)
				return
			}
			profile, err := profiles.GetProfile(ctx, user.ID)
			if err != nil {
				requestctx.Logger(ctx).Warn("auth: profile lookup failed", zap.String("user_id", user.ID), zap.Error(err))
				http.Redirect(w, r, home, http.StatusFound)
				return
			}
			if !profile.IsAdmin() {
				requestctx.Logger(ctx).Info("auth: non-admin denied", zap.String("user_id", user.ID))
				http.Redirect(w, r, home, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
