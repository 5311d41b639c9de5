// Package app wires configuration, AWS clients, stores and the lifecycle
// orchestrator for every entry point.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/stevenmeyer142/pintler-va-app/internal/aws"
	"github.com/stevenmeyer142/pintler-va-app/internal/config"
	"github.com/stevenmeyer142/pintler-va-app/internal/convert"
	"github.com/stevenmeyer142/pintler-va-app/internal/datastores"
	"github.com/stevenmeyer142/pintler-va-app/internal/handlers"
	"github.com/stevenmeyer142/pintler-va-app/internal/healthlake"
	"github.com/stevenmeyer142/pintler-va-app/internal/jobs"
	"github.com/stevenmeyer142/pintler-va-app/internal/lifecycle"
	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
	"github.com/stevenmeyer142/pintler-va-app/internal/metrics"
	"github.com/stevenmeyer142/pintler-va-app/internal/objectstore"
	"github.com/stevenmeyer142/pintler-va-app/internal/tracing"
)

type App struct {
	Cfg       *config.Config
	Log       *logger.Logger
	Clients   *aws.AWSClients
	Records   datastores.Store
	Hub       *datastores.Hub
	Bus       *datastores.RedisBus
	Objects   *objectstore.Gateway
	Converter *convert.Converter
	Lake      *healthlake.Client
	Lifecycle *lifecycle.Orchestrator
	Jobs      *jobs.Store
	Publisher *aws.Publisher

	closers []func(context.Context) error
}

// New builds the full dependency graph. Redis, metrics, tracing and the job
// queue are only wired when configured.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	shutdownTracing, err := tracing.Init(ctx, log, tracing.Config{
		Enabled:     cfg.OtelEnabled,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Exporter:    cfg.OtelExporter,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	clients, err := aws.NewAWSClients(ctx, aws.Settings{MaxAttempts: cfg.AWSMaxAttempts})
	if err != nil {
		return nil, fmt.Errorf("init aws clients: %w", err)
	}
	a.Clients = clients

	a.Hub = datastores.NewHub(log)
	var notifier datastores.Notifier = a.Hub
	if cfg.RedisAddr != "" {
		bus, err := datastores.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisChannel, log)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
		a.Bus = bus
		a.closers = append(a.closers, func(context.Context) error { return bus.Close() })
		// the local hub hears its own writes directly; the forwarder only
		// relays other instances' events
		notifier = datastores.Fanout(a.Hub, bus)
	}
	a.Records = datastores.Observed(datastores.NewDynamoStore(clients.DynamoDB, cfg.DatastoresTable), notifier, log)

	a.Objects = objectstore.NewGateway(clients.S3, objectstore.Config{
		Region:            clients.Region,
		BucketPrefix:      cfg.BucketPrefix,
		BucketWaitTimeout: cfg.BucketWaitTimeout,
		ObjectWaitTimeout: cfg.ObjectWaitTimeout,
	}, log)
	a.Converter = convert.NewConverter(a.Objects, log)
	a.Lake = healthlake.NewClient(clients.HealthLake, healthlake.PollConfig{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollMaxAttempts,
	}, log)

	var recorder metrics.Recorder = metrics.Nop{}
	if cfg.MetricsEnabled {
		recorder = metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, log)
	}

	a.Lifecycle = lifecycle.New(lifecycle.Deps{
		Records:   a.Records,
		Lake:      a.Lake,
		Objects:   a.Objects,
		Converter: a.Converter,
		Metrics:   recorder,
		Log:       log,
	}, lifecycle.Settings{
		KMSKeyID:          cfg.KMSKeyID,
		DataAccessRoleARN: cfg.DataAccessRoleARN,
	})

	if cfg.JobsTable != "" {
		a.Jobs = jobs.NewStore(clients.DynamoDB, cfg.JobsTable, cfg.JobTTL)
	}
	if cfg.AsyncJobs() {
		a.Publisher = aws.NewPublisher(clients.SQS, cfg.JobsQueueURL)
	}
	return a, nil
}

// HandlerConfig returns the HTTP dependencies. Jobs and Queue stay nil unless
// the job queue is configured so requests run inline.
func (a *App) HandlerConfig() handlers.HandlerConfig {
	hc := handlers.HandlerConfig{
		Lifecycle: a.Lifecycle,
		Records:   a.Records,
		Hub:       a.Hub,
		Log:       a.Log,
	}
	if a.Cfg.AsyncJobs() && a.Jobs != nil {
		hc.Jobs = a.Jobs
		hc.Queue = a.Publisher
	}
	return hc
}

// Forward starts relaying other instances' bus events into the local hub
// until ctx ends. Local writes reach the hub without it.
func (a *App) Forward(ctx context.Context) error {
	if a.Bus == nil {
		return nil
	}
	return a.Bus.StartForwarder(ctx, a.Hub.Notify)
}

func (a *App) Close(ctx context.Context) {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Log.Warn("shutdown", "err", err)
	}
	a.Log.Sync()
}
