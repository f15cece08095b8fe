// Package queue provides the SQS producer that hands quota threshold
// notifications to the downstream delivery worker (email, in-app).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"jobtrail/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// QuotaNotificationMessage is the wire payload for one batch of freshly
// raised threshold notifications for a single user.
type QuotaNotificationMessage struct {
	MessageID     string                    `json:"message_id"`
	UserID        string                    `json:"user_id"`
	Notifications []types.QuotaNotification `json:"notifications"`
	RaisedAt      time.Time                 `json:"raised_at"`
}

// Notifier sends quota notification batches to the delivery queue. An empty
// queue URL disables delivery, which is the local-development default.
type Notifier struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewNotifier creates a Notifier targeting the given queue URL.
func NewNotifier(client SQSSender, queueURL string, logger *slog.Logger) *Notifier {
	return &Notifier{client: client, queueURL: queueURL, logger: logger}
}

// PublishQuotaNotifications serializes the batch and dispatches it. Each call
// carries only notifications newly raised by the triggering usage change;
// standing state is never re-delivered.
func (n *Notifier) PublishQuotaNotifications(ctx context.Context, userID string, notifs []types.QuotaNotification) error {
	if n.queueURL == "" || len(notifs) == 0 {
		return nil
	}

	msg := QuotaNotificationMessage{
		MessageID:     uuid.New().String(),
		UserID:        userID,
		Notifications: notifs,
		RaisedAt:      time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal quota notification message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(notifs[0].Kind)),
			},
		},
	}

	if _, err := n.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send quota notification to %s: %w", n.queueURL, err)
	}

	n.logger.InfoContext(ctx, "quota notification message sent",
		"queue_url", n.queueURL,
		"message_id", msg.MessageID,
		"user_id", userID,
		"notification_count", len(notifs),
	)
	return nil
}
