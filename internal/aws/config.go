package aws

import (
	"context"
	"fmt"
	"os"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// DefaultRegion is used when neither the settings nor the environment name one.
const DefaultRegion = "us-east-1"

// Settings shape the SDK config every service client is built from.
type Settings struct {
	// Region falls back to AWS_REGION, then AWS_DEFAULT_REGION, then DefaultRegion.
	Region string
	// Endpoint points every client at one base URL, e.g. LocalStack.
	// Empty falls back to AWS_ENDPOINT_OVERRIDE.
	Endpoint string
	// MaxAttempts caps SDK retries per call; zero keeps the SDK default.
	MaxAttempts int
}

func (s Settings) resolve() Settings {
	if s.Region == "" {
		s.Region = firstEnv("AWS_REGION", "AWS_DEFAULT_REGION")
	}
	if s.Region == "" {
		s.Region = DefaultRegion
	}
	if s.Endpoint == "" {
		s.Endpoint = os.Getenv("AWS_ENDPOINT_OVERRIDE")
	}
	return s
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// LoadAWSConfig loads the shared config with credentials from the default chain.
func LoadAWSConfig(ctx context.Context, s Settings) (sdkaws.Config, error) {
	s = s.resolve()

	opts := []func(*config.LoadOptions) error{config.WithRegion(s.Region)}
	if s.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(s.Endpoint))
	}
	if s.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(s.MaxAttempts))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return cfg, fmt.Errorf("load aws config (region %s): %w", s.Region, err)
	}
	return cfg, nil
}
