package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/bearound/booking-funnel/internal/config"
	"github.com/bearound/booking-funnel/internal/events"
	"github.com/bearound/booking-funnel/pkg/logging"
)

const memoryEventBuffer = 256

// BuildEventPublisher publishes funnel events to SQS when OUTCOME_QUEUE_URL is set
// and a client is provided. Otherwise events go to an in-memory queue, which is
// returned so callers can drain it.
func BuildEventPublisher(cfg *appconfig.Config, sqsClient *sqs.Client, logger *logging.Logger) (*events.Publisher, *events.MemoryQueue) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg != nil && sqsClient != nil && strings.TrimSpace(cfg.OutcomeQueueURL) != "" {
		logger.Info("funnel events published to sqs", "queue_url", cfg.OutcomeQueueURL)
		return events.NewPublisher(events.NewSQSQueue(sqsClient, cfg.OutcomeQueueURL), logger), nil
	}
	queue := events.NewMemoryQueue(memoryEventBuffer)
	return events.NewPublisher(queue, logger), queue
}
