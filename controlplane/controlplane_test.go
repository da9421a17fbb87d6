package controlplane

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestTenantAuthMiddlewareRejectsMissingAPIKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := TenantAuthMiddleware("secret")(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	err := handler(c)
	if err == nil {
		t.Fatal("expected an error for missing X-API-Key")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestTenantAuthMiddlewareRejectsMissingTenantID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := TenantAuthMiddleware("secret")(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	err := handler(c)
	if err == nil {
		t.Fatal("expected an error for missing X-Tenant-ID")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestTenantAuthMiddlewareSucceedsAndSetsTenantID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "secret")
	req.Header.Set("X-Tenant-ID", "tenant-a")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var capturedTenant string
	handler := TenantAuthMiddleware("secret")(func(c echo.Context) error {
		capturedTenant = TenantID(c)
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatal(err)
	}
	if capturedTenant != "tenant-a" {
		t.Fatalf("expected tenant_id propagated, got %q", capturedTenant)
	}
}

func TestCorrelationIDMiddlewareGeneratesIDWhenHeaderAbsent(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var captured string
	handler := CorrelationIDMiddleware()(func(c echo.Context) error {
		captured = CorrelationID(c)
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatal(err)
	}
	if captured == "" {
		t.Fatal("expected a generated correlation ID")
	}
	if rec.Header().Get("X-Correlation-ID") != captured {
		t.Fatalf("expected response header to echo the correlation ID, got %q", rec.Header().Get("X-Correlation-ID"))
	}
}

func TestCorrelationIDMiddlewarePropagatesCallerSuppliedID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "caller-supplied-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var captured string
	handler := CorrelationIDMiddleware()(func(c echo.Context) error {
		captured = CorrelationID(c)
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatal(err)
	}
	if captured != "caller-supplied-id" {
		t.Fatalf("expected caller-supplied correlation ID to be propagated, got %q", captured)
	}
}

func TestIsExportable(t *testing.T) {
	exportable := []string{"completed", "completed_with_warnings", "degraded_no_evidence"}
	for _, s := range exportable {
		if !isExportable(s) {
			t.Fatalf("expected %s to be exportable", s)
		}
	}
	notExportable := []string{"queued", "running", "failed_pipeline"}
	for _, s := range notExportable {
		if isExportable(s) {
			t.Fatalf("expected %s to not be exportable", s)
		}
	}
}
