// Package relay orchestrates the handling of one inbound message: sanitize,
// record the user turn, gate on the dispatch policy, ask the completion
// provider for the next reply, deliver it, and escalate when the handoff
// policy fires. The transcript store is the only shared mutable state; the
// whole pipeline for one user runs under that user's conversation lock.
package relay

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/whatsline/internal/completion"
	"github.com/antoniostano/whatsline/internal/convlog"
	"github.com/antoniostano/whatsline/internal/dispatch"
	"github.com/antoniostano/whatsline/internal/monitor"
	"github.com/antoniostano/whatsline/internal/notify"
	"github.com/antoniostano/whatsline/internal/observability"
	"github.com/antoniostano/whatsline/internal/sanitize"
	"github.com/antoniostano/whatsline/internal/transcript"
)

// Inbound is one parsed webhook message.
type Inbound struct {
	From          string
	Text          string
	PhoneNumberID string
}

// Outcome reports what the pipeline did with an inbound message.
type Outcome struct {
	// Dropped means the message failed validation and nothing was recorded.
	Dropped bool
	// Skipped means the reply budget was exhausted; the user turn was
	// recorded but no completion or delivery happened.
	Skipped bool
	// ReplyText is the assistant reply, when one was produced.
	ReplyText string
	// Delivered reports the outbound send outcome for push transports.
	Delivered bool
	// ResponseBody holds the synchronous transport's markup document.
	ResponseBody []byte
	// Handoff means the conversation was flagged for a human agent.
	Handoff bool
}

// Relay wires the pipeline stages together.
type Relay struct {
	store       *transcript.Store
	completions completion.Client
	notifier    notify.Notifier
	limits      dispatch.Limits
	thresholds  dispatch.Thresholds
	convlog     *convlog.Logger
	metrics     *observability.Metrics
	hub         *monitor.Hub
	log         *zap.Logger
	transport   string
}

// Config bundles the relay's collaborators and policy.
type Config struct {
	Store       *transcript.Store
	Completions completion.Client
	Notifier    notify.Notifier
	Limits      dispatch.Limits
	Thresholds  dispatch.Thresholds
	ConvLog     *convlog.Logger
	Metrics     *observability.Metrics
	Hub         *monitor.Hub
	Log         *zap.Logger
	// Transport names the active delivery strategy for metrics ("push" or
	// "twiml").
	Transport string
}

func New(cfg Config) *Relay {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		store:       cfg.Store,
		completions: cfg.Completions,
		notifier:    cfg.Notifier,
		limits:      cfg.Limits,
		thresholds:  cfg.Thresholds,
		convlog:     cfg.ConvLog,
		metrics:     cfg.Metrics,
		hub:         cfg.Hub,
		log:         log,
		transport:   cfg.Transport,
	}
}

// HandleInbound runs the pipeline for one message. A returned error means
// the completion provider failed; delivery and logging failures are
// absorbed here. The caller maps the error to its transport's contract.
func (r *Relay) HandleInbound(ctx context.Context, in Inbound) (Outcome, error) {
	text := sanitize.Clean(in.Text)
	if in.From == "" || text == "" {
		r.metrics.InboundEvents.WithLabelValues("dropped").Inc()
		return Outcome{Dropped: true}, nil
	}

	var out Outcome
	err := r.store.Do(ctx, in.From, func(c *transcript.Conversation) error {
		c.Append(transcript.RoleUser, text)
		r.publish(monitor.Event{UserID: in.From, Kind: monitor.KindReceived, Detail: text})

		if !dispatch.ShouldQueryCompletion(c.Turns(), r.limits) {
			out.Skipped = true
			r.metrics.InboundEvents.WithLabelValues("skipped").Inc()
			r.publish(monitor.Event{UserID: in.From, Kind: monitor.KindSkipped})
			return nil
		}

		start := time.Now()
		reply, err := r.completions.Complete(ctx, c.Turns())
		if err != nil {
			r.metrics.InboundEvents.WithLabelValues("provider_error").Inc()
			r.metrics.ProviderErrors.WithLabelValues(providerErrorCode(err)).Inc()
			r.log.Error("completion failed", zap.String("user_id", in.From), zap.Error(err))
			return err
		}
		r.metrics.ObserveCompletionLatency(time.Since(start))

		c.Append(transcript.RoleAssistant, reply)
		out.ReplyText = reply
		r.publish(monitor.Event{UserID: in.From, Kind: monitor.KindReplied, Detail: reply})

		r.deliver(ctx, in, reply, &out)

		if dispatch.ShouldHandoff(c.Turns(), reply, r.thresholds) {
			out.Handoff = true
			r.metrics.Handoffs.Inc()
			r.publish(monitor.Event{UserID: in.From, Kind: monitor.KindHandoff})
			r.log.Info("human handoff triggered", zap.String("user_id", in.From))
			if r.convlog != nil {
				r.convlog.LogSummary(ctx, in.From, c.Turns())
			}
		}

		r.metrics.InboundEvents.WithLabelValues("replied").Inc()
		return nil
	})

	r.metrics.ActiveConversations.Set(float64(r.store.ActiveCount()))
	return out, err
}

// deliver sends the reply and records the outcome. A delivery failure is
// logged and counted but never escalates: the platform already handed the
// inbound message to us, so the webhook must still acknowledge it.
func (r *Relay) deliver(ctx context.Context, in Inbound, reply string, out *Outcome) {
	ack, err := r.notifier.Send(ctx, notify.Outbound{
		To:            in.From,
		Text:          reply,
		PhoneNumberID: in.PhoneNumberID,
	})
	if err != nil {
		r.metrics.DeliveryOutcomes.WithLabelValues(r.transport, "failure").Inc()
		r.publish(monitor.Event{UserID: in.From, Kind: monitor.KindDeliveryFailed, Detail: err.Error()})
		r.log.Warn("outbound delivery failed", zap.String("user_id", in.From), zap.Error(err))
		return
	}
	out.Delivered = true
	out.ResponseBody = ack.Body
	r.metrics.DeliveryOutcomes.WithLabelValues(r.transport, "success").Inc()
	r.publish(monitor.Event{UserID: in.From, Kind: monitor.KindDelivered, Detail: ack.MessageID})
}

func (r *Relay) publish(ev monitor.Event) {
	if r.hub != nil {
		r.hub.Publish(ev)
	}
}

func providerErrorCode(err error) string {
	var pe *completion.ProviderError
	if errors.As(err, &pe) {
		if pe.StatusCode > 0 {
			return strconv.Itoa(pe.StatusCode)
		}
		return "transport"
	}
	if errors.Is(err, completion.ErrEmptyResponse) {
		return "empty_response"
	}
	return "unknown"
}
