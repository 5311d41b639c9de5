package main

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/stevenmeyer142/pintler-va-app/internal/app"
	"github.com/stevenmeyer142/pintler-va-app/internal/config"
	"github.com/stevenmeyer142/pintler-va-app/internal/lifecycle"
	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

// Event is the resolver payload: the operation name and its arguments.
type Event struct {
	Info struct {
		FieldName string `json:"fieldName"`
	} `json:"info"`
	Arguments json.RawMessage `json:"arguments"`
}

type Invoker interface {
	Invoke(ctx context.Context, operation string, args json.RawMessage) lifecycle.Response
}

// handler returns the JSON-encoded response string resolvers expect.
func handler(lc Invoker) func(ctx context.Context, ev Event) (string, error) {
	return func(ctx context.Context, ev Event) (string, error) {
		return lc.Invoke(ctx, ev.Info.FieldName, ev.Arguments).JSON(), nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}

	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("failed to init app", "err", err)
	}
	defer a.Close(context.Background())

	lambda.Start(handler(a.Lifecycle))
}
