package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/smmpanel/panelsync/internal/config"
	"github.com/smmpanel/panelsync/internal/database"
	privateJWT "github.com/smmpanel/panelsync/internal/jwt"
)

// Header names stamped onto verified requests for downstream handlers.
const (
	UserIDHeader = "Panel-User-Id"
	AdminHeader  = "Panel-User-Admin"
)

// InternalTokenHeader carries the shared secret the scheduler presents on
// internal entrypoints instead of a user JWT.
const InternalTokenHeader = "X-Internal-Token"

func VerifyMiddleware(db *database.Postgres) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

			if strings.Contains(r.URL.String(), "register") || strings.Contains(r.URL.String(), "login") {
				if r.Header.Get("Content-Type") != "application/json" {
					http.Error(w, http.StatusText(http.StatusUnsupportedMediaType), http.StatusUnsupportedMediaType)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			// Internal entrypoints are triggered by the scheduler, not a user:
			// they authenticate with the shared secret instead of a JWT.
			if strings.HasPrefix(r.URL.Path, "/api/internal/") {
				token := r.Header.Get(InternalTokenHeader)
				if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(config.Config.SecretToken)) != 1 {
					http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get("Authorization") == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			token, err := privateJWT.TokenAuth.Decode(jwtauth.TokenFromHeader(r))

			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			if token == nil || jwt.Validate(token) != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			username, ok := token.PrivateClaims()["username"].(string)
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			userID, _, isAdmin, errDB := db.GetUserData(username)
			if errDB != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			r.Header.Set(UserIDHeader, strconv.Itoa(userID))
			r.Header.Set(AdminHeader, strconv.FormatBool(isAdmin))

			next.ServeHTTP(w, r)

		})
	}
}
