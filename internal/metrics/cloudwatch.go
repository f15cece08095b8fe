// Package metrics emits quota decision metrics to AWS CloudWatch.
package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric and dimension names.
const (
	metricQuotaDecision = "QuotaDecision"
	dimAction           = "Action"
	dimOutcome          = "Outcome"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCollector emits one QuotaDecision datum per enforcement decision
// with Action and Outcome dimensions. Dashboards alert on the denied rate
// per action.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchCollector creates a collector publishing to the given
// namespace.
func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchCollector {
	return &CloudWatchCollector{client: client, namespace: namespace, logger: logger}
}

// RecordDecision emits a QuotaDecision metric. Metric failures are logged
// and swallowed; enforcement never depends on observability.
func (c *CloudWatchCollector) RecordDecision(ctx context.Context, action string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricQuotaDecision),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(dimAction), Value: aws.String(action)},
					{Name: aws.String(dimOutcome), Value: aws.String(outcome)},
				},
			},
		},
	}

	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.logger.WarnContext(ctx, "failed to record quota decision metric",
			"error", err, "action", action, "outcome", outcome)
	}
}
