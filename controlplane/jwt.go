package controlplane

import (
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"compliance.evalgo.org/security"
)

// contextKeyJWT is the echo context key the JWT middleware stores the
// parsed token under.
const contextKeyJWT = "jwt_token"

// JWTAuthMiddleware verifies a bearer token issued by security.JWTService
// and extracts its tenant_id custom claim onto the echo context, the same
// way TenantAuthMiddleware extracts X-Tenant-ID from a header. It is an
// alternative entry path for first-party web clients that authenticate
// with a bearer token instead of a shared API key (spec.md §4.15's
// Expansion). RegisterRoutes itself installs neither middleware;
// cmd/complyengine applies TenantAuthMiddleware to every route and does
// not install this one.
func JWTAuthMiddleware(jwtService *security.JWTService) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey: contextKeyJWT,
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			token, err := jwtService.ValidateToken(auth)
			if err != nil {
				return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
			}
			tenantID, _ := token.Get("tenant_id")
			tenantIDStr, ok := tenantID.(string)
			if !ok || tenantIDStr == "" {
				return nil, echo.NewHTTPError(http.StatusBadRequest, "token missing tenant_id claim")
			}
			c.Set("tenant_id", tenantIDStr)
			return token, nil
		},
	})
}

// TokenTenantID reads the tenant_id claim off the token JWTAuthMiddleware
// verified, for handlers that want it directly rather than via TenantID(c).
func TokenTenantID(c echo.Context) (string, bool) {
	token, ok := c.Get(contextKeyJWT).(jwt.Token)
	if !ok {
		return "", false
	}
	tenantID, ok := token.Get("tenant_id")
	if !ok {
		return "", false
	}
	tenantIDStr, ok := tenantID.(string)
	return tenantIDStr, ok
}
