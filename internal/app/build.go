package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/antoniostano/whatsline/internal/completion"
	"github.com/antoniostano/whatsline/internal/config"
	"github.com/antoniostano/whatsline/internal/convlog"
	"github.com/antoniostano/whatsline/internal/dispatch"
	"github.com/antoniostano/whatsline/internal/monitor"
	"github.com/antoniostano/whatsline/internal/notify"
	"github.com/antoniostano/whatsline/internal/observability"
	"github.com/antoniostano/whatsline/internal/persona"
	"github.com/antoniostano/whatsline/internal/relay"
	"github.com/antoniostano/whatsline/internal/transcript"
	"github.com/antoniostano/whatsline/internal/webhook"
)

// BuildResult holds the wired service.
type BuildResult struct {
	Config  config.Config
	API     *webhook.Server
	Store   *transcript.Store
	Relay   *relay.Relay
	Hub     *monitor.Hub
	Metrics *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build wires every component from configuration.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*BuildResult, error) {
	if log == nil {
		log = zap.NewNop()
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	per, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		return nil, fmt.Errorf("persona load failed: %w", err)
	}

	limits := dispatch.Limits{
		MaxAssistantTurns: override(cfg.MaxAssistantTurns, per.Policy.MaxAssistantTurns),
	}
	thresholds := dispatch.Thresholds{
		Marker:            per.Policy.HandoffMarker,
		MaxTotalTurns:     override(cfg.HandoffTotalTurns, per.Policy.HandoffTotalTurns),
		MaxAssistantTurns: override(cfg.HandoffAssistantTurns, per.Policy.HandoffAssistantTurns),
	}
	if cfg.HandoffMarker != "" {
		thresholds.Marker = cfg.HandoffMarker
	}

	store := transcript.NewStore(per.Prompt, cfg.ConversationTTL)

	var completions completion.Client
	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY not set, using mock completion client")
		completions = completion.NewMockClient()
	} else {
		completions = completion.NewOpenAIClient(completion.OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.CompletionTimeout,
		})
	}

	sink, err := convlog.NewSink(ctx, convlog.SinkConfig{
		Sheets: convlog.SheetsConfig{
			CredentialsFile: cfg.SheetsCredentialsFile,
			SpreadsheetID:   cfg.SheetsSpreadsheetID,
			Worksheet:       cfg.SheetsWorksheet,
		},
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation log sink init failed: %w", err)
	}

	var notifier notify.Notifier
	if cfg.Transport == webhook.TransportTwiML {
		notifier = notify.NewTwiMLNotifier()
	} else {
		notifier = notify.NewMetaNotifier(notify.MetaConfig{
			BaseURL:              cfg.MetaBaseURL,
			AccessToken:          cfg.MetaAccessToken,
			DefaultPhoneNumberID: cfg.MetaPhoneNumberID,
		})
	}

	hub := monitor.NewHub(log)

	rel := relay.New(relay.Config{
		Store:       store,
		Completions: completions,
		Notifier:    notifier,
		Limits:      limits,
		Thresholds:  thresholds,
		ConvLog:     convlog.NewLogger(completions, sink, log),
		Metrics:     metrics,
		Hub:         hub,
		Log:         log,
		Transport:   cfg.Transport,
	})

	api := webhook.New(webhook.Config{
		VerifyToken: cfg.VerifyToken,
		Transport:   cfg.Transport,
	}, rel, metrics, hub, log)

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Store:   store,
		Relay:   rel,
		Hub:     hub,
		Metrics: metrics,
		Cleanup: sink.Close,
	}, nil
}

func override(v, fallback int) int {
	if v >= 0 {
		return v
	}
	return fallback
}
