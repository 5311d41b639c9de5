// Package metrics publishes lifecycle pipeline metrics to CloudWatch.
package metrics

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/stevenmeyer142/pintler-va-app/internal/aws"
	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

const (
	MetricSucceeded      = "PipelineSucceeded"
	MetricFailed         = "PipelineFailed"
	MetricDuration       = "PipelineDuration"
	MetricPollIterations = "PollIterations"

	dimensionOperation = "Operation"
)

// Recorder never returns errors; failures to publish are logged.
type Recorder interface {
	PipelineFinished(ctx context.Context, operation string, success bool, elapsed time.Duration)
	PollIterations(ctx context.Context, operation string, iterations int)
}

type Nop struct{}

func (Nop) PipelineFinished(context.Context, string, bool, time.Duration) {}
func (Nop) PollIterations(context.Context, string, int)                   {}

type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	log       *logger.Logger
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace string, log *logger.Logger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		log:       log.With("component", "Metrics"),
	}
}

func (c *CloudWatch) PipelineFinished(ctx context.Context, operation string, success bool, elapsed time.Duration) {
	name := MetricSucceeded
	if !success {
		name = MetricFailed
	}
	c.put(ctx,
		datum(name, operation, 1, types.StandardUnitCount),
		datum(MetricDuration, operation, float64(elapsed.Milliseconds()), types.StandardUnitMilliseconds),
	)
}

func (c *CloudWatch) PollIterations(ctx context.Context, operation string, iterations int) {
	c.put(ctx, datum(MetricPollIterations, operation, float64(iterations), types.StandardUnitCount))
}

func (c *CloudWatch) put(ctx context.Context, data ...types.MetricDatum) {
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(c.namespace),
		MetricData: data,
	})
	if err != nil {
		c.log.Warn("put metric data failed", "namespace", c.namespace, "err", err)
	}
}

func datum(name, operation string, value float64, unit types.StandardUnit) types.MetricDatum {
	return types.MetricDatum{
		MetricName: sdkaws.String(name),
		Dimensions: []types.Dimension{
			{Name: sdkaws.String(dimensionOperation), Value: sdkaws.String(operation)},
		},
		Value:     sdkaws.Float64(value),
		Unit:      unit,
		Timestamp: sdkaws.Time(time.Now()),
	}
}
