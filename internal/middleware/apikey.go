package middleware

import (
	"net"
	"net/http"
	"strings"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/services"

	"github.com/gorilla/mux"
)

// APIKeyMiddleware authenticates the metered data plane: X-API-Key header,
// redis cache in front of the database lookup, allowed-origin enforcement,
// then key + owning plan into the request context for the rate limiter.
func APIKeyMiddleware(
	apiKeyService services.APIKeyService,
	subscriptionService services.SubscriptionService,
	cache services.CacheService,
) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyID := r.Header.Get("X-API-Key")
			if keyID == "" {
				writeJSONError(w, http.StatusUnauthorized, "API key required")
				return
			}

			apiKey := services.GetCachedAPIKey(r.Context(), cache, keyID)
			if apiKey == nil || !apiKey.IsValid() {
				verified, err := apiKeyService.VerifyKey(r.Context(), keyID)
				if err != nil {
					writeJSONError(w, http.StatusUnauthorized, "Invalid API key")
					return
				}
				apiKey = verified
				services.CacheAPIKey(r.Context(), cache, apiKey)
			}

			if origin := requestDomain(r); origin != "" && !apiKey.OriginAllowed(origin) {
				writeJSONError(w, http.StatusForbidden, "Domain not allowed for this API key")
				return
			}

			plan := planForKey(r, subscriptionService, apiKey)

			ctx := services.WithAPIKeyContext(r.Context(), apiKey, plan)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// planForKey resolves the owning plan; no subscription means no monthly cap,
// which the evaluator treats as unlimited.
func planForKey(r *http.Request, subscriptionService services.SubscriptionService, key *models.APIKey) *models.Plan {
	subscription, err := subscriptionService.Current(r.Context(), key.UserID)
	if err != nil || subscription == nil {
		return nil
	}
	return &subscription.Plan
}

// requestDomain extracts the bare host from the Origin header. IPv6 origins
// arrive bracketed ("http://[::1]:3000"), so the port cannot be split off at
// the first colon.
func requestDomain(r *http.Request) string {
	origin := r.Header.Get("Origin")
	origin = strings.TrimPrefix(origin, "https://")
	origin = strings.TrimPrefix(origin, "http://")
	if host, _, err := net.SplitHostPort(origin); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(origin, "["), "]")
}
