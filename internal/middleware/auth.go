package middleware

import (
	"net/http"
	"strings"

	"captcha-gateway-api/internal/logger"
	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/services"

	"github.com/gorilla/mux"
)

// AuthMiddleware guards the dashboard control plane: a valid bearer JWT puts
// the user and their active subscription into the request context.
func AuthMiddleware(authService services.AuthService) mux.MiddlewareFunc {
	return requireUser(authService.VerifyToken)
}

// AdminMiddleware is the same gate but additionally requires the admin claim.
func AdminMiddleware(authService services.AuthService) mux.MiddlewareFunc {
	return requireUser(authService.VerifyTokenAdmin)
}

func requireUser(verify func(string) (*models.User, *models.Subscription, error)) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			user, subscription, err := verify(token)
			if err != nil {
				logger.Logger.WithField("error", err.Error()).Debug("token verification failed")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := services.WithUserAndSubscriptionContext(r.Context(), user, subscription)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
