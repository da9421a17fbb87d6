// Command complyengine is the run engine's server process: it starts the
// control-plane HTTP API and the run-worker pool against the same
// Postgres database, reading all configuration once at startup from
// environment variables (spec.md §6), exactly as eve's main.go wires up
// its own single entry point.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"compliance.evalgo.org/auditlog"
	"compliance.evalgo.org/config"
	"compliance.evalgo.org/controlplane"
	dbconn "compliance.evalgo.org/db"
	httpserver "compliance.evalgo.org/http"
	"compliance.evalgo.org/lmclient"
	"compliance.evalgo.org/pipeline"
	"compliance.evalgo.org/retrieval"
	"compliance.evalgo.org/runcache"
	"compliance.evalgo.org/runworker"
)

func main() {
	logger := auditlog.New()
	env := config.NewEnvConfig("")

	dsn := env.MustGetString("DATABASE_URL")
	gdb, err := dbconn.OpenGorm(dsn, dbconn.DefaultGormConfig())
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}

	manager := runworker.NewManager(gdb)

	transport := lmclient.NewOpenAICompatibleTransport(
		env.MustGetString("LM_BASE_URL"),
		env.MustGetString("LM_API_KEY"),
		lmclient.ResponsesFirst,
	)
	extractor := lmclient.New(transport, env.GetString("LM_MODEL_NAME", "gpt-4o-mini"))
	retriever := retrieval.New(gdb)
	params := retrieval.DefaultParams(env.GetInt("RETRIEVAL_TOP_K", 8), extractor.ModelName())
	assessPipeline := pipeline.New(gdb, retriever, extractor, params)
	executor := runworker.NewExecutor(gdb, manager, assessPipeline)

	if pgPool, err := dbconn.NewPostgresDB(dsn); err != nil {
		logger.WithError(err).Warn("run cache disabled: failed to open pgx pool")
	} else {
		defer pgPool.Close()
		cache, err := runcache.NewStore(pgPool, env.GetString("RUNCACHE_REDIS_URL", ""), "")
		if err != nil {
			logger.WithError(err).Warn("run cache disabled: failed to initialize cache store")
		} else {
			executor = executor.WithCache(cache)
		}
	}

	runQueue, err := runworker.NewAMQPQueue(
		env.MustGetString("QUEUE_AMQP_URL"),
		env.GetString("QUEUE_RUN_EXECUTION_NAME", "run-execution"),
	)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to run execution queue")
	}
	defer runQueue.Close()

	workerPool := runworker.NewPool(runQueue, executor, env.GetInt("RUN_WORKER_COUNT", 4), logger)
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	workerPool.Start(workerCtx)
	defer workerPool.Stop()

	serverConfig := httpserver.DefaultServerConfig()
	serverConfig.Port = env.GetInt("CONTROLPLANE_PORT", 8080)
	e := httpserver.NewEchoServer(serverConfig)
	e.HTTPErrorHandler = httpserver.CustomHTTPErrorHandler

	apiKey := env.GetString("CONTROLPLANE_API_KEY", "")
	e.Use(controlplane.CorrelationIDMiddleware())
	e.Use(controlplane.TenantAuthMiddleware(apiKey))
	controlplane.RegisterRoutes(e, controlplane.Config{DB: gdb, Manager: manager, Publisher: runQueue, Tracker: workerPool.Tracker()})

	go func() {
		if err := httpserver.StartServer(e, serverConfig); err != nil {
			logger.WithError(err).Error("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}
