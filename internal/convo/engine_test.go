package convo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"conuco-bot/internal/repo"
	"conuco-bot/internal/weather"
)

var testNow = time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	repo.Repository

	users         map[string]bool
	crops         []repo.Crop
	registrations []repo.Registration
	regErr        error
	snapshot      *repo.PlantingSnapshot
	snapshotErr   error
	feedback      []repo.FeedbackRecord
	feedbackErr   error
	zones         map[int]repo.Zone
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users: make(map[string]bool),
		crops: []repo.Crop{
			{ID: "c1", Code: "AJI", Name: "Ají Cubanela", CycleDays: 120},
			{ID: "c2", Code: "BAN", Name: "Banano", CycleDays: 365},
			{ID: "c3", Code: "HAB", Name: "Habichuela", CycleDays: 65},
			{ID: "c4", Code: "TOM", Name: "Tomate", CycleDays: 90},
			{ID: "c5", Code: "YUC", Name: "Yuca", CycleDays: 300},
		},
		zones: map[int]repo.Zone{
			1: {ID: 1, Name: "Azua (Suroeste Seco)", Latitude: 18.45, Longitude: -70.73},
			2: {ID: 2, Name: "Santiago (Cibao Húmedo)", Latitude: 19.45, Longitude: -70.70},
		},
	}
}

func (f *fakeRepo) UserExists(_ context.Context, contactID string) (bool, error) {
	return f.users[contactID], nil
}

func (f *fakeRepo) ListCrops(_ context.Context) ([]repo.Crop, error) {
	return f.crops, nil
}

func (f *fakeRepo) CompleteRegistration(_ context.Context, reg repo.Registration) (*repo.Planting, error) {
	if f.regErr != nil {
		return nil, f.regErr
	}
	f.registrations = append(f.registrations, reg)
	f.users[reg.ContactID] = true
	return &repo.Planting{ID: "p1", SowingDate: reg.SowingDate, Active: true}, nil
}

func (f *fakeRepo) CurrentPlanting(_ context.Context, _ string) (*repo.PlantingSnapshot, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.snapshot, nil
}

func (f *fakeRepo) GetZone(_ context.Context, id int) (*repo.Zone, error) {
	z, ok := f.zones[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &z, nil
}

func (f *fakeRepo) InsertFeedback(_ context.Context, fb repo.FeedbackRecord) error {
	if f.feedbackErr != nil {
		return f.feedbackErr
	}
	f.feedback = append(f.feedback, fb)
	return nil
}

type fakeWeather struct {
	snapshot *weather.Snapshot
	err      error
}

func (f *fakeWeather) Current(_ context.Context, _, _ float64) (*weather.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func newTestEngine(r *fakeRepo, w *fakeWeather, cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return testNow }
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(r, w, nil, nil, nil, logger, cfg)
}

func TestHandleUnknownTextReturnsWelcome(t *testing.T) {
	e := newTestEngine(newFakeRepo(), &fakeWeather{}, EngineConfig{})
	if got := e.Handle(context.Background(), "user1", "hola"); got != welcomeMessage {
		t.Fatalf("expected welcome message, got %q", got)
	}
}

func TestHandleHelp(t *testing.T) {
	e := newTestEngine(newFakeRepo(), &fakeWeather{}, EngineConfig{})
	if got := e.Handle(context.Background(), "user1", "AYUDA"); got != helpMessage {
		t.Fatalf("expected help message, got %q", got)
	}
}

func TestRegistrationFlow(t *testing.T) {
	r := newFakeRepo()
	e := newTestEngine(r, &fakeWeather{}, EngineConfig{})
	ctx := context.Background()
	const user = "user1"

	reply := e.Handle(ctx, user, "REGISTRO")
	if !strings.Contains(reply, "4 - Tomate") {
		t.Fatalf("expected crop menu, got %q", reply)
	}

	reply = e.Handle(ctx, user, "4")
	if !strings.Contains(reply, "Tomate") || !strings.Contains(reply, "¿Cuándo lo sembraste?") {
		t.Fatalf("expected date prompt, got %q", reply)
	}

	reply = e.Handle(ctx, user, "hace 5 días")
	if !strings.Contains(reply, "(5 días desde siembra)") {
		t.Fatalf("expected elapsed days confirmation, got %q", reply)
	}

	reply = e.Handle(ctx, user, "Vivo en Santiago")
	if !strings.Contains(reply, "¡REGISTRO COMPLETO!") {
		t.Fatalf("expected completion message, got %q", reply)
	}
	if !strings.Contains(reply, "Santiago (Cibao Húmedo)") {
		t.Fatalf("expected zone name in completion, got %q", reply)
	}
	if !strings.Contains(reply, "15/08/2025") {
		t.Fatalf("expected sowing date in completion, got %q", reply)
	}

	if len(r.registrations) != 1 {
		t.Fatalf("expected one registration, got %d", len(r.registrations))
	}
	reg := r.registrations[0]
	if reg.ContactID != user || reg.CropCode != "TOM" || reg.ZoneID != 2 || reg.ElapsedDays != 5 {
		t.Fatalf("unexpected registration record: %+v", reg)
	}

	// State is cleared after completion.
	if got := e.Handle(ctx, user, "hola"); got != welcomeMessage {
		t.Fatalf("expected welcome after completed registration, got %q", got)
	}
}

func TestRegisterWhenAlreadyRegistered(t *testing.T) {
	r := newFakeRepo()
	r.users["user1"] = true
	e := newTestEngine(r, &fakeWeather{}, EngineConfig{})

	reply := e.Handle(context.Background(), "user1", "registro")
	if reply != alreadyRegisteredMessage {
		t.Fatalf("expected already-registered message, got %q", reply)
	}
	if len(r.registrations) != 0 {
		t.Fatalf("no registration must be recorded, got %d", len(r.registrations))
	}
}

func TestInvalidCropChoiceKeepsState(t *testing.T) {
	r := newFakeRepo()
	e := newTestEngine(r, &fakeWeather{}, EngineConfig{})
	ctx := context.Background()

	e.Handle(ctx, "user1", "REGISTRO")
	reply := e.Handle(ctx, "user1", "9")
	if !strings.Contains(reply, "Opción no válida") {
		t.Fatalf("expected rejection, got %q", reply)
	}

	// Crop names and aliases are accepted as well as numbers.
	reply = e.Handle(ctx, "user1", "guineo")
	if !strings.Contains(reply, "Banano") || !strings.Contains(reply, "¿Cuándo lo sembraste?") {
		t.Fatalf("expected date prompt after alias match, got %q", reply)
	}
}

func TestInvalidDateReprompts(t *testing.T) {
	e := newTestEngine(newFakeRepo(), &fakeWeather{}, EngineConfig{})
	ctx := context.Background()

	e.Handle(ctx, "user1", "REGISTRO")
	e.Handle(ctx, "user1", "1")
	reply := e.Handle(ctx, "user1", "el mes pasado")
	if reply != invalidDateMessage {
		t.Fatalf("expected date re-prompt, got %q", reply)
	}

	// State survives the rejection.
	reply = e.Handle(ctx, "user1", "hoy")
	if !strings.Contains(reply, "(0 días desde siembra)") {
		t.Fatalf("expected date accepted after re-prompt, got %q", reply)
	}
}

func TestRegistrationSaveFailureKeepsState(t *testing.T) {
	r := newFakeRepo()
	r.regErr = errors.New("connection lost")
	e := newTestEngine(r, &fakeWeather{}, EngineConfig{})
	ctx := context.Background()

	e.Handle(ctx, "user1", "REGISTRO")
	e.Handle(ctx, "user1", "4")
	e.Handle(ctx, "user1", "hoy")

	reply := e.Handle(ctx, "user1", "Santiago")
	if reply != saveFailedMessage {
		t.Fatalf("expected save-failed message, got %q", reply)
	}

	// Resending the location retries the commit.
	r.regErr = nil
	reply = e.Handle(ctx, "user1", "Azua")
	if !strings.Contains(reply, "¡REGISTRO COMPLETO!") {
		t.Fatalf("expected completion after retry, got %q", reply)
	}
	if len(r.registrations) != 1 || r.registrations[0].ZoneID != 1 {
		t.Fatalf("expected one registration in the default zone, got %+v", r.registrations)
	}
}

func plantingFixture() *repo.PlantingSnapshot {
	return &repo.PlantingSnapshot{
		PlantingID: "p1",
		CropCode:   "TOM",
		CropName:   "Tomate",
		CycleDays:  90,
		SowingDate: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		ZoneID:     2,
		ZoneName:   "Santiago (Cibao Húmedo)",
		Latitude:   19.45,
		Longitude:  -70.70,
	}
}

func TestReportWithoutPlanting(t *testing.T) {
	r := newFakeRepo()
	r.snapshotErr = repo.ErrNotFound
	e := newTestEngine(r, &fakeWeather{}, EngineConfig{})

	reply := e.Handle(context.Background(), "user1", "REPORTE")
	if reply != noPlantingMessage {
		t.Fatalf("expected no-planting message, got %q", reply)
	}
}

func TestReportAndFeedbackRoundTrip(t *testing.T) {
	r := newFakeRepo()
	r.snapshot = plantingFixture()
	w := &fakeWeather{snapshot: &weather.Snapshot{MaxTemp24h: 28, MeanHumidity: 70, RainProbability: 20}}
	e := newTestEngine(r, w, EngineConfig{RetailMarkup: 3})
	ctx := context.Background()

	reply := e.Handle(ctx, "user1", "REPORTE")
	if !strings.Contains(reply, "Cultivo: Tomate") {
		t.Fatalf("expected crop report, got %q", reply)
	}
	if !strings.Contains(reply, feedbackPrompt) {
		t.Fatalf("expected feedback prompt, got %q", reply)
	}

	// Unrecognized input re-prompts without losing the pending feedback.
	reply = e.Handle(ctx, "user1", "tal vez")
	if reply != feedbackRepromptLine {
		t.Fatalf("expected feedback re-prompt, got %q", reply)
	}

	reply = e.Handle(ctx, "user1", "SI")
	if reply != feedbackThanksYes {
		t.Fatalf("expected thanks, got %q", reply)
	}

	if len(r.feedback) != 1 {
		t.Fatalf("expected one feedback record, got %d", len(r.feedback))
	}
	fb := r.feedback[0]
	if fb.PlantingID != "p1" || fb.Rating != "util" || fb.Recommendation == "" {
		t.Fatalf("unexpected feedback record: %+v", fb)
	}

	// Feedback state is cleared once captured.
	if got := e.Handle(ctx, "user1", "hola"); got != welcomeMessage {
		t.Fatalf("expected welcome after feedback, got %q", got)
	}
}

func TestNegativeFeedback(t *testing.T) {
	r := newFakeRepo()
	r.snapshot = plantingFixture()
	w := &fakeWeather{snapshot: &weather.Snapshot{MaxTemp24h: 28, MeanHumidity: 70}}
	e := newTestEngine(r, w, EngineConfig{})
	ctx := context.Background()

	e.Handle(ctx, "user1", "REPORTE")
	reply := e.Handle(ctx, "user1", "👎 no me sirvió")
	if reply != feedbackThanksNo {
		t.Fatalf("expected negative thanks, got %q", reply)
	}
	if len(r.feedback) != 1 || r.feedback[0].Rating != "no_util" {
		t.Fatalf("expected no_util rating, got %+v", r.feedback)
	}
}

func TestReportWeatherUnavailable(t *testing.T) {
	r := newFakeRepo()
	r.snapshot = plantingFixture()
	w := &fakeWeather{err: weather.ErrUnavailable}
	e := newTestEngine(r, w, EngineConfig{})

	reply := e.Handle(context.Background(), "user1", "REPORTE")
	if !strings.Contains(reply, "No se pudieron obtener datos del clima.") {
		t.Fatalf("expected degraded report, got %q", reply)
	}
	if strings.Contains(reply, feedbackPrompt) {
		t.Fatalf("no feedback prompt without a recommendation, got %q", reply)
	}
}

func TestCommandPreemptsPendingFeedback(t *testing.T) {
	r := newFakeRepo()
	r.snapshot = plantingFixture()
	w := &fakeWeather{snapshot: &weather.Snapshot{MaxTemp24h: 28, MeanHumidity: 70}}
	e := newTestEngine(r, w, EngineConfig{})
	ctx := context.Background()

	e.Handle(ctx, "user1", "REPORTE")
	reply := e.Handle(ctx, "user1", "AYUDA")
	if reply != helpMessage {
		t.Fatalf("commands must pre-empt feedback capture, got %q", reply)
	}

	// The prompt is dropped, not just bypassed: free text falls back to the
	// welcome message and a late yes/no records nothing.
	if got := e.Handle(ctx, "user1", "hola"); got != welcomeMessage {
		t.Fatalf("expected welcome after dropped prompt, got %q", got)
	}
	if got := e.Handle(ctx, "user1", "SI"); got != welcomeMessage {
		t.Fatalf("expected welcome for a late rating, got %q", got)
	}
	if len(r.feedback) != 0 {
		t.Fatalf("no feedback must be recorded after pre-emption, got %+v", r.feedback)
	}
}

func TestFeedbackCadence(t *testing.T) {
	r := newFakeRepo()
	r.snapshot = plantingFixture()
	w := &fakeWeather{snapshot: &weather.Snapshot{MaxTemp24h: 28, MeanHumidity: 70}}
	e := newTestEngine(r, w, EngineConfig{FeedbackEvery: 2})
	ctx := context.Background()

	reply := e.Handle(ctx, "user1", "REPORTE")
	if strings.Contains(reply, feedbackPrompt) {
		t.Fatalf("first report must not ask for feedback at cadence 2, got %q", reply)
	}

	reply = e.Handle(ctx, "user1", "REPORTE")
	if !strings.Contains(reply, feedbackPrompt) {
		t.Fatalf("second report must ask for feedback at cadence 2, got %q", reply)
	}
}
