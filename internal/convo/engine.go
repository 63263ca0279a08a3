// Package convo implements the per-user conversation engine: command
// dispatch, the registration state machine and the advisory feedback loop.
package convo

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"conuco-bot/internal/cache"
	"conuco-bot/internal/metrics"
	"conuco-bot/internal/repo"
	"conuco-bot/internal/wa"
	"conuco-bot/internal/weather"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

const (
	cropCatalogCacheKey = "catalog:crops"
	cropCatalogCacheTTL = 10 * time.Minute
)

const (
	welcomeMessage = "Hola! Soy Mi Conuco Smart 🌱\nEnvía REGISTRO para comenzar\nEnvía REPORTE para ver tu cultivo\nEnvía AYUDA para más opciones"
	helpMessage    = "MI CONUCO SMART - AYUDA\n\n📝 REGISTRO - registra tu siembra\n📊 REPORTE - estado, clima y sugerencia\n❓ AYUDA - este mensaje\n\nCultivos: Tomate, Ají, Banano, Habichuela, Yuca"
	genericError   = "⚠️ Tuvimos un problema técnico. Intenta de nuevo más tarde."
)

// WeatherService is the slice of the weather client the engine needs.
type WeatherService interface {
	Current(ctx context.Context, lat, lon float64) (*weather.Snapshot, error)
}

// TextSender delivers outbound WhatsApp replies.
type TextSender interface {
	SendText(ctx context.Context, to types.JID, text string) error
}

// EngineConfig tunes engine policy knobs.
type EngineConfig struct {
	// FeedbackEvery asks for advisory feedback every Nth report per user
	// (1 = after every report).
	FeedbackEvery int
	// RetailMarkup is added to the wholesale price in the report's market
	// line. A configured constant, not a computed price.
	RetailMarkup float64
	// Clock overrides the time source; nil means time.Now.
	Clock func() time.Time
}

// Engine interprets inbound messages against per-user conversation state.
type Engine struct {
	repo    repo.Repository
	weather WeatherService
	sender  TextSender
	cache   *cache.Redis
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     EngineConfig

	states *stateStore
	now    func() time.Time
}

// New creates a conversation engine. Sender and cache may be nil.
func New(repository repo.Repository, weatherClient WeatherService, sender TextSender, redis *cache.Redis, metricRegistry *metrics.Metrics, logger *slog.Logger, cfg EngineConfig) *Engine {
	if cfg.FeedbackEvery < 1 {
		cfg.FeedbackEvery = 1
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		repo:    repository,
		weather: weatherClient,
		sender:  sender,
		cache:   redis,
		metrics: metricRegistry,
		logger:  logger.With("component", "convo"),
		cfg:     cfg,
		states:  newStateStore(),
		now:     now,
	}
}

// Handle processes one inbound message and returns the reply text. It never
// panics past this boundary: unexpected failures produce the generic
// technical-problem message. Messages from the same user are serialized by a
// per-user lock.
func (e *Engine) Handle(ctx context.Context, contactID, raw string) (reply string) {
	unlock := e.states.lock(contactID)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic handling message", "contact", contactID, "panic", r)
			if e.metrics != nil {
				e.metrics.Errors.WithLabelValues("convo").Inc()
			}
			reply = genericError
		}
	}()

	msg := normalize(raw)

	// Commands always pre-empt in-progress flows, including a pending
	// feedback prompt, which is simply dropped.
	if cmd, ok := canonicalCommand(msg); ok {
		if st, ok := e.states.get(contactID); ok && st.Step == StepAwaitingFeedback {
			e.states.clear(contactID)
		}
		switch cmd {
		case cmdRegister:
			return e.startRegistration(ctx, contactID)
		case cmdReport:
			return e.report(ctx, contactID)
		case cmdHelp:
			return helpMessage
		}
	}

	if st, ok := e.states.get(contactID); ok {
		switch st.Step {
		case StepAwaitingFeedback:
			return e.captureFeedback(ctx, contactID, st, msg)
		case StepSelectingCrop:
			return e.selectCrop(contactID, st, msg)
		case StepAwaitingSowingDate:
			return e.captureSowingDate(contactID, st, msg)
		case StepAwaitingLocation:
			return e.completeRegistration(ctx, contactID, st, msg)
		}
	}

	return welcomeMessage
}

// ProcessMessage implements the WhatsApp message-processor callback: it
// extracts the text, runs Handle and sends the reply quoting the inbound
// message. Send failures are logged, never raised.
func (e *Engine) ProcessMessage(ctx context.Context, evt *events.Message) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	text := evt.Message.GetConversation()
	if text == "" && evt.Message.ExtendedTextMessage != nil {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	if e.metrics != nil {
		e.metrics.IncomingMessages.WithLabelValues("whatsapp").Inc()
	}

	reply := e.Handle(ctx, evt.Info.Sender.ToNonAD().String(), text)
	if reply == "" || e.sender == nil {
		return
	}

	if err := e.sender.SendText(wa.WithReply(ctx, evt), evt.Info.Chat, reply); err != nil {
		e.logger.Error("failed sending whatsapp reply", "error", err, "chat", evt.Info.Chat.String())
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("wa_send").Inc()
		}
	}
}

// cropMenu loads the crop catalog, via the Redis cache when available.
func (e *Engine) cropMenu(ctx context.Context) ([]cropOption, error) {
	if e.cache != nil {
		var cached []cropOption
		ok, err := e.cache.GetJSON(ctx, cropCatalogCacheKey, &cached)
		if err != nil {
			e.logger.Warn("read crop catalog cache failed", "error", err)
		} else if ok && len(cached) > 0 {
			return cached, nil
		}
	}

	crops, err := e.repo.ListCrops(ctx)
	if err != nil {
		return nil, err
	}

	menu := make([]cropOption, 0, len(crops))
	for _, c := range crops {
		menu = append(menu, cropOption{Code: c.Code, Name: c.Name, CycleDays: c.CycleDays})
	}

	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, cropCatalogCacheKey, menu, cropCatalogCacheTTL); err != nil {
			e.logger.Warn("set crop catalog cache failed", "error", err)
		}
	}
	return menu, nil
}

// ReloadCropCache refreshes the cached crop catalog from the database and
// returns the number of crops loaded.
func (e *Engine) ReloadCropCache(ctx context.Context) (int, error) {
	if e.cache != nil {
		if err := e.cache.Delete(ctx, cropCatalogCacheKey); err != nil {
			e.logger.Warn("delete crop catalog cache failed", "error", err)
		}
	}
	menu, err := e.cropMenu(ctx)
	if err != nil {
		return 0, err
	}
	return len(menu), nil
}
