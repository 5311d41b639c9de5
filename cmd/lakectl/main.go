package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stevenmeyer142/pintler-va-app/internal/app"
	"github.com/stevenmeyer142/pintler-va-app/internal/config"
	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

func main() {
	root, release := newRootCmd(buildEnv)
	err := root.Execute()
	release()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildEnv wires the same graph the Lambdas use.
func buildEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	e := &env{
		lifecycle: a.Lifecycle,
		records:   a.Records,
		objects:   a.Objects,
		hub:       a.Hub,
		kmsKeyID:  cfg.KMSKeyID,
		close:     func() { a.Close(context.Background()) },
	}
	if a.Bus != nil {
		e.forward = a.Forward
	}
	return e, nil
}
