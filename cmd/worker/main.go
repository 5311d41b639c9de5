package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/stevenmeyer142/pintler-va-app/internal/app"
	"github.com/stevenmeyer142/pintler-va-app/internal/config"
	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to init app", "err", err)
	}
	defer a.Close(context.Background())
	if a.Jobs == nil {
		log.Fatal("JOBS_TABLE must be set for the worker")
	}

	p := NewProcessor(a.Jobs, a.Lifecycle, log)

	// If RUN_LOCAL=true, process a single message from LOCAL_SQS_BODY.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Fatal("LOCAL_SQS_BODY is required when RUN_LOCAL=true")
		}
		event := events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local-1", Body: body}}}
		if err := p.Handle(ctx, event); err != nil {
			log.Fatal("local handler error", "err", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
