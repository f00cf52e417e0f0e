package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rupture_engine/config"
	"github.com/mmdatafocus/rupture_engine/models"
	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/mmdatafocus/rupture_engine/utils"
	"github.com/sirupsen/logrus"
)

var errInvalidStockEvent = errors.New("invalid stock event")

type ProductInvalidator interface {
	Invalidate(ctx context.Context, product projection.ProductKey)
}

// PubSubPushEnvelope is the body Pub/Sub posts to a push endpoint.
type PubSubPushEnvelope struct {
	Message struct {
		Data        []byte            `json:"data"`
		ID          string            `json:"messageId"`
		Attributes  map[string]string `json:"attributes"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// StockEventListener drops cached projections of products that writers report as changed.
//
// Every instance holds its own in-process cache, so every instance must see every event.
// With InstanceId set, Run pulls from a subscription of its own instead of the shared one.
type StockEventListener struct {
	cache  ProductInvalidator
	logger *logrus.Logger

	MaxOutstandingMessages int
	InstanceId             string
	// SubscriptionExpiry lets Pub/Sub drop the subscriptions of instances that died
	// without deleting them. Pub/Sub does not accept less than one day.
	SubscriptionExpiry time.Duration
}

func NewStockEventListener(cache ProductInvalidator, logger *logrus.Logger) *StockEventListener {
	return &StockEventListener{
		cache:                  cache,
		logger:                 logger,
		MaxOutstandingMessages: 10,
		SubscriptionExpiry:     24 * time.Hour,
	}
}

// InstanceSubscription names the subscription one instance pulls from.
func InstanceSubscription(base, instanceId string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "stock-events"
	}
	if instanceId == "" {
		return base
	}
	return base + "-" + instanceId
}

// Handle invalidates the product named by m. Malformed events return errInvalidStockEvent
// and must not be redelivered.
func (l *StockEventListener) Handle(ctx context.Context, m config.StockEventMessage) error {
	if m.ProductId <= 0 {
		return fmt.Errorf("%w: product_id %d", errInvalidStockEvent, m.ProductId)
	}
	productType := models.ProductTypeSingle
	if m.ProductType != "" {
		parsed, err := models.ParseProductType(m.ProductType)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidStockEvent, err)
		}
		productType = parsed
	}
	if m.Action != "" {
		if _, err := models.ParseStockEventAction(m.Action); err != nil {
			return fmt.Errorf("%w: %w", errInvalidStockEvent, err)
		}
	}

	product := models.ProductKeyFor(productType, m.ProductId)
	l.cache.Invalidate(ctx, product)
	l.logger.WithFields(logrus.Fields{
		"module":         "stockEventListener",
		"business_id":    m.BusinessId,
		"product":        product,
		"reference_type": m.ReferenceType,
		"reference_id":   m.ReferenceId,
		"correlation_id": m.CorrelationId,
	}).Debug("projection invalidated")
	return nil
}

func (l *StockEventListener) handleData(ctx context.Context, data []byte, messageId string) {
	var m config.StockEventMessage
	if err := json.Unmarshal(data, &m); err != nil {
		config.LogError(l.logger, "stockEventListener.go", "handleData", "Unmarshal stock event", string(data), err)
		return
	}
	if m.CorrelationId == "" {
		m.CorrelationId = messageId
	}
	ctx = utils.SetCorrelationIdInContext(ctx, m.CorrelationId)
	if m.BusinessId != "" {
		ctx = utils.SetBusinessIdInContext(ctx, m.BusinessId)
	}
	if err := l.Handle(ctx, m); err != nil {
		config.LogError(l.logger, "stockEventListener.go", "handleData", "Invalid stock event", m, err)
	}
}

// Run pulls from the subscription until ctx is done. Every message is acked: invalidation
// is idempotent and a poison message must not loop.
func (l *StockEventListener) Run(ctx context.Context, client *pubsub.Client, topicName, subscriptionName string) error {
	topic, err := config.CreateTopicIfNotExists(ctx, client, topicName)
	if err != nil {
		return err
	}

	var sub *pubsub.Subscription
	if l.InstanceId == "" {
		sub, err = config.CreateSubscriptionIfNotExists(ctx, client, subscriptionName, topic)
		if err != nil {
			return err
		}
	} else {
		name := InstanceSubscription(subscriptionName, l.InstanceId)
		sub, err = config.CreateInstanceSubscription(ctx, client, name, topic, l.SubscriptionExpiry)
		if err != nil {
			return err
		}
		defer func() {
			deleteCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sub.Delete(deleteCtx); err != nil {
				config.LogError(l.logger, "stockEventListener.go", "Run", "delete instance subscription", name, err)
			}
		}()
	}
	sub.ReceiveSettings.MaxOutstandingMessages = l.MaxOutstandingMessages

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		l.handleData(ctx, msg.Data, msg.ID)
		msg.Ack()
	})
}

// PushHandler serves Pub/Sub push deliveries. It always answers 204 so malformed
// payloads are dropped instead of retried.
//
// A push subscription reaches one instance per message, so it only keeps the cache of
// that instance fresh. Deployments with more than one instance rely on Run.
func (l *StockEventListener) PushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(l.logger, "stockEventListener.go", "PushHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		var envelope PubSubPushEnvelope
		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(l.logger, "stockEventListener.go", "PushHandler", "Unmarshal body", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}

		l.handleData(c.Request.Context(), envelope.Message.Data, envelope.Message.ID)
		c.Status(http.StatusNoContent)
	}
}
