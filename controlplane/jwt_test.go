package controlplane

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func TestTokenTenantIDReadsClaimFromParsedToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := jwt.NewBuilder().
		Subject("user-1").
		Claim("tenant_id", "tenant-a").
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	parsed, err := jwt.Parse(signed, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set(contextKeyJWT, parsed)

	tenantID, ok := TokenTenantID(c)
	if !ok {
		t.Fatal("expected tenant_id claim to be present")
	}
	if tenantID != "tenant-a" {
		t.Fatalf("expected tenant-a, got %v", tenantID)
	}
}
