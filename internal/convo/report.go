package convo

import (
	"context"
	"errors"
	"strings"

	"conuco-bot/internal/advisory"
	"conuco-bot/internal/repo"
)

const (
	noPlantingMessage     = "No encontré tu cultivo. Envía REGISTRO para empezar."
	feedbackPrompt        = "¿Te sirvió esta sugerencia? (SI/NO)"
	feedbackRepromptLine  = "Responde SI o NO (👍/👎) sobre la última sugerencia."
	feedbackThanksYes     = "¡Gracias por tu respuesta! Tu feedback nos ayuda a mejorar. 👍"
	feedbackThanksNo      = "Entendido. Gracias, aprenderemos de esto para darte mejores sugerencias. 👎"
)

var (
	affirmativeTokens = map[string]bool{"si": true, "yes": true, "util": true, "👍": true}
	negativeTokens    = map[string]bool{"no": true, "👎": true}
)

// report handles the REPORT command: loads the current planting, fetches
// weather for the user's zone, builds the advisory report and, when the
// cadence triggers, asks for feedback on the recommendation.
func (e *Engine) report(ctx context.Context, contactID string) string {
	snapshot, err := e.repo.CurrentPlanting(ctx, contactID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return noPlantingMessage
		}
		e.logger.Error("load current planting failed", "error", err, "contact", contactID)
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("repo").Inc()
		}
		return genericError
	}

	ws, err := e.weather.Current(ctx, snapshot.Latitude, snapshot.Longitude)
	if err != nil {
		e.logger.Warn("weather unavailable for report", "error", err, "zone", snapshot.ZoneID)
		ws = nil
	}

	days := elapsedDays(snapshot.SowingDate, e.now())
	report, recommendation := advisory.BuildReport(*snapshot, ws, days, e.cfg.RetailMarkup)

	outcome := "ok"
	if ws == nil {
		outcome = "no_weather"
	}
	if e.metrics != nil {
		e.metrics.Reports.WithLabelValues(outcome).Inc()
	}

	if recommendation != "" && e.states.nextReportCount(contactID)%e.cfg.FeedbackEvery == 0 {
		e.states.set(contactID, State{
			Step:           StepAwaitingFeedback,
			PlantingID:     snapshot.PlantingID,
			Recommendation: recommendation,
		})
		return report + "\n\n" + feedbackPrompt
	}

	return report
}

// captureFeedback interprets a yes/no rating while awaiting feedback. Any
// unrecognized input re-prompts without clearing state.
func (e *Engine) captureFeedback(ctx context.Context, contactID string, st State, msg string) string {
	rating, ok := classifyFeedback(msg)
	if !ok {
		return feedbackRepromptLine
	}

	err := e.repo.InsertFeedback(ctx, repo.FeedbackRecord{
		PlantingID:     st.PlantingID,
		Recommendation: st.Recommendation,
		Rating:         rating,
	})
	if err != nil {
		e.logger.Error("save feedback failed", "error", err, "contact", contactID)
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("repo").Inc()
		}
		return genericError
	}

	e.states.clear(contactID)
	if e.metrics != nil {
		e.metrics.Feedback.WithLabelValues(rating).Inc()
	}

	if rating == "util" {
		return feedbackThanksYes
	}
	return feedbackThanksNo
}

// classifyFeedback maps a normalized message to a rating. Emoji may arrive
// embedded in longer text; words must match as whole tokens.
func classifyFeedback(msg string) (string, bool) {
	if strings.Contains(msg, "👍") {
		return "util", true
	}
	if strings.Contains(msg, "👎") {
		return "no_util", true
	}
	for _, field := range strings.Fields(msg) {
		if affirmativeTokens[field] {
			return "util", true
		}
		if negativeTokens[field] {
			return "no_util", true
		}
	}
	return "", false
}
