// Package worker consumes inbound text messages from NATS and replies with
// the survey engine's responses. It is the application-worker boundary: one
// message in, one reply out, all survey state lives in the registry.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/menuline/survey-platform/internal/model"
	natsclient "github.com/menuline/survey-platform/internal/nats"
	"github.com/menuline/survey-platform/internal/service"
	"github.com/menuline/survey-platform/pkg/logger"
	"github.com/menuline/survey-platform/pkg/metrics"
)

// OutboundSubjectPrefix is where replies go when the inbound message carries
// no reply subject.
const OutboundSubjectPrefix = "survey.outbound"

// Worker subscribes to the inbound subject and drives the survey service.
type Worker struct {
	client  *natsclient.Client
	surveys *service.SurveyService
	logger  *logger.Logger
	subject string
	queue   string
	sub     *nats.Subscription
}

// New creates a worker consuming the given subject in a queue group.
func New(client *natsclient.Client, surveys *service.SurveyService, log *logger.Logger, subject, queue string) *Worker {
	return &Worker{
		client:  client,
		surveys: surveys,
		logger:  log,
		subject: subject,
		queue:   queue,
	}
}

// Start subscribes and begins handling messages.
func (w *Worker) Start() error {
	sub, err := w.client.Conn().QueueSubscribe(w.subject, w.queue, w.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.subject, err)
	}
	w.sub = sub
	w.logger.Info("worker subscribed",
		zap.String("subject", w.subject),
		zap.String("queue", w.queue),
	)
	return nil
}

// Stop drains the subscription so in-flight messages finish.
func (w *Worker) Stop() error {
	if w.sub == nil {
		return nil
	}
	return w.sub.Drain()
}

func (w *Worker) handle(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var inbound model.InboundMessage
	if err := json.Unmarshal(msg.Data, &inbound); err != nil {
		w.logger.Error("invalid inbound message", zap.Error(err))
		metrics.WorkerMessages.WithLabelValues("invalid").Inc()
		return
	}
	if inbound.PollID == "" || inbound.UserID == "" {
		w.logger.Error("inbound message missing poll_id or user_id")
		metrics.WorkerMessages.WithLabelValues("invalid").Inc()
		return
	}

	log := w.logger.WithSurvey(inbound.PollID, inbound.UserID)
	reply, err := w.surveys.HandleMessage(ctx, inbound)
	if err != nil {
		log.Error("failed to handle message", zap.Error(err))
		metrics.WorkerMessages.WithLabelValues("error").Inc()
		return
	}
	metrics.WorkerMessages.WithLabelValues("handled").Inc()

	data, err := json.Marshal(reply)
	if err != nil {
		log.Error("failed to marshal reply", zap.Error(err))
		return
	}

	subject := msg.Reply
	if subject == "" {
		subject = fmt.Sprintf("%s.%s", OutboundSubjectPrefix, inbound.UserID)
	}
	if err := w.client.Conn().Publish(subject, data); err != nil {
		log.Error("failed to publish reply", zap.Error(err))
	}
}
