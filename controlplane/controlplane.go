// Package controlplane is the thin Echo façade over the run engine (spec
// §4.15, §6): it owns no business logic, only request validation,
// X-API-Key + X-Tenant-ID authentication, and dispatch onto
// bundles/pipeline/runworker/exportpack. Server setup (middleware stack,
// graceful shutdown) is grounded on http/server.go's NewEchoServer;
// API-key checking is grounded on http/server.go's APIKeyMiddleware,
// generalized to also require X-Tenant-ID per spec.md §6.
package controlplane

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"compliance.evalgo.org/bundles"
	"compliance.evalgo.org/entities"
	"compliance.evalgo.org/faultkind"
	"compliance.evalgo.org/qualitygate"
	"compliance.evalgo.org/runworker"
)

// Publisher hands a run execution job off to the worker pool
// asynchronously. Satisfied by *runworker.AMQPQueue in production.
type Publisher interface {
	Enqueue(payload runworker.RunExecutionPayload) error
}

// Config is the control plane's request-time dependencies.
type Config struct {
	DB        *gorm.DB
	Manager   *runworker.Manager
	Publisher Publisher
	Tracker   *runworker.Tracker
}

// TenantAuthMiddleware requires both X-API-Key (checked against apiKey)
// and a non-empty X-Tenant-ID header, storing the tenant ID on the echo
// context for handlers to read via TenantID(c).
func TenantAuthMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey != "" {
				key := c.Request().Header.Get("X-API-Key")
				if key == "" || key != apiKey {
					return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid X-API-Key")
				}
			}
			tenantID := c.Request().Header.Get("X-Tenant-ID")
			if tenantID == "" {
				return echo.NewHTTPError(http.StatusBadRequest, "missing X-Tenant-ID")
			}
			c.Set("tenant_id", tenantID)
			return next(c)
		}
	}
}

// TenantID reads the tenant ID set by TenantAuthMiddleware.
func TenantID(c echo.Context) string {
	tenantID, _ := c.Get("tenant_id").(string)
	return tenantID
}

// CorrelationIDMiddleware propagates or mints an X-Correlation-ID for every
// request, so a caller's own trace ID carries through to the RunEvent
// payloads and worker logs for a run it triggers, and an operator without
// one still gets a stable ID back to quote when filing a support request.
// Generation mirrors the teacher's request-tracing middleware, minus the
// OpenTelemetry span export this engine's ambient stack does not carry.
func CorrelationIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			correlationID := c.Request().Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
			c.Set("correlation_id", correlationID)
			c.Response().Header().Set("X-Correlation-ID", correlationID)
			return next(c)
		}
	}
}

// CorrelationID reads the ID set by CorrelationIDMiddleware.
func CorrelationID(c echo.Context) string {
	id, _ := c.Get("correlation_id").(string)
	return id
}

// RegisterRoutes wires the run lifecycle endpoints onto e.
func RegisterRoutes(e *echo.Echo, cfg Config) {
	runs := e.Group("/runs")
	runs.POST("", createRunHandler(cfg))
	runs.POST("/:id/execute", executeRunHandler(cfg))
	runs.GET("/:id", getRunHandler(cfg))
	runs.GET("/:id/export", exportRunHandler(cfg))

	e.GET("/operations", listOperationsHandler(cfg))
}

// listOperationsHandler exposes the worker pool's in-memory view of
// recent run-execution attempts, for an operator dashboard — distinct
// from the durable Run/RunEvent history in Postgres.
func listOperationsHandler(cfg Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		if cfg.Tracker == nil {
			return c.JSON(http.StatusOK, []runworker.RunOperation{})
		}
		ops := cfg.Tracker.List()
		out := make([]runworker.RunOperation, len(ops))
		for i, op := range ops {
			out[i] = *op
		}
		return c.JSON(http.StatusOK, out)
	}
}

type createRunRequest struct {
	CompanyID     uint   `json:"company_id"`
	BundleID      string `json:"bundle_id"`
	BundleVersion string `json:"bundle_version"`
	CompilerMode  string `json:"compiler_mode"`
}

func createRunHandler(cfg Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID := TenantID(c)
		var req createRunRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if req.CompilerMode == "" {
			req.CompilerMode = "legacy"
		}

		run := entities.Run{
			TenantID:      tenantID,
			CompanyID:     req.CompanyID,
			BundleID:      req.BundleID,
			BundleVersion: req.BundleVersion,
			CompilerMode:  req.CompilerMode,
			Status:        runworker.StatusQueued,
		}
		if err := cfg.DB.Create(&run).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to create run")
		}
		return c.JSON(http.StatusCreated, run)
	}
}

// executeRunHandler hands a run off to the worker pool for asynchronous
// execution (spec.md §5: "hands work off asynchronously and returns
// immediately"). Calling it on a run that is already running or already
// terminal is a no-op per spec.md §4.12 — the caller always gets a 202
// regardless, since whether a worker actually advances the run is an
// implementation detail this endpoint deliberately does not expose: a
// second Enqueue for an already-claimed run is simply dropped by the
// worker's state machine when it dequeues the message.
func executeRunHandler(cfg Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		var run entities.Run
		if err := cfg.DB.First(&run, c.Param("id")).Error; err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}

		if cfg.Publisher != nil {
			datapointKeys, err := bundles.ResolveRequiredDatapointIDs(cfg.DB, run.CompanyID, run.BundleID, run.BundleVersion, &run.ID)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnprocessableEntity, "failed to resolve required datapoints")
			}
			datapoints, err := runworker.LoadDatapointsForBundle(cfg.DB, run.BundleID, datapointKeys)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to load datapoint definitions")
			}
			payload := runworker.RunExecutionPayload{
				RunID:         run.ID,
				TenantID:      run.TenantID,
				CompanyID:     run.CompanyID,
				BundleVersion: run.BundleVersion,
				CompilerMode:  run.CompilerMode,
				Datapoints:    datapoints,
				QualityGate:   qualityGateConfigFor(run),
			}
			if err := cfg.Publisher.Enqueue(payload); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to enqueue run for execution")
			}
		}

		return c.JSON(http.StatusAccepted, map[string]interface{}{
			"run_id":         run.ID,
			"status":         run.Status,
			"correlation_id": CorrelationID(c),
		})
	}
}

func getRunHandler(cfg Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		var run entities.Run
		if err := cfg.DB.First(&run, c.Param("id")).Error; err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		return c.JSON(http.StatusOK, run)
	}
}

// exportRunHandler answers with the run's {run_id, status} as JSON when
// the run is in an exportable terminal state, or a 409 with
// {code, reasons[]} otherwise (spec.md §6). It does not build or return
// the evidence pack itself.
func exportRunHandler(cfg Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		var run entities.Run
		if err := cfg.DB.First(&run, c.Param("id")).Error; err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		if !isExportable(run.Status) {
			classification := faultkind.ClassifyQualityGateFailure(run.Status)
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"code":    string(classification.Kind),
				"reasons": []string{"run status is " + run.Status + ", not yet exportable"},
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"run_id": run.ID, "status": run.Status})
	}
}

// qualityGateConfigFor selects the quality-gate thresholds for run. Every
// run currently uses the fixed default configuration; a per-bundle
// override would read from entities.RegulatoryBundle here once one is
// needed.
func qualityGateConfigFor(run entities.Run) qualitygate.Config {
	return qualitygate.DefaultConfig()
}

func isExportable(status string) bool {
	switch status {
	case runworker.StatusCompleted, runworker.StatusCompletedWithWarnings, runworker.StatusDegradedNoEvidence:
		return true
	default:
		return false
	}
}
