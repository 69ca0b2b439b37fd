package auth

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/tinytb/web3.storage/adapters/metrics"
	domainauth "github.com/tinytb/web3.storage/domain/auth"
	"github.com/tinytb/web3.storage/domain/billing"
)

// Authenticator turns an Authorization header into a verified user.
type Authenticator interface {
	Authenticate(header string) (billing.User, error)
}

type contextKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user billing.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the authenticated user stored by RequireUser.
func UserFromContext(ctx context.Context) (billing.User, bool) {
	user, ok := ctx.Value(contextKey{}).(billing.User)
	return user, ok && user.ID != ""
}

// RequireUser rejects requests without a valid bearer token.
// onFailure writes the error response; m may be nil.
func RequireUser(
	authenticator Authenticator,
	logger zerolog.Logger,
	m *metrics.Collector,
	onFailure func(w http.ResponseWriter, r *http.Request, err error),
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticator.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				reason := string(domainauth.ReasonOf(err))
				if reason == "" {
					reason = string(domainauth.ReasonInvalid)
				}
				if m != nil {
					m.AuthFailures.WithLabelValues(reason).Inc()
				}
				logger.Debug().
					Str("reason", reason).
					Str("path", r.URL.Path).
					Msg("request not authenticated")
				onFailure(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
