package convo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"conuco-bot/internal/advisory"
	"conuco-bot/internal/repo"
)

const (
	alreadyRegisteredMessage = "Ya estás registrado! Envía REPORTE para ver el estado de tu cultivo."
	invalidDateMessage       = "No entendí la fecha. Prueba:\n- \"hoy\"\n- \"hace 10 días\"\n- \"15/8/2025\""
	saveFailedMessage        = "⚠️ Error al guardar tu registro. Envía tu ubicación de nuevo para reintentar."
)

// zoneKeywords maps location keywords to zone ids; first match in table
// order wins, anything else falls back to the default zone.
var zoneKeywords = []struct {
	Keyword string
	ZoneID  int
}{
	{"santiago", 2},
	{"constanza", 3},
	{"hato mayor", 4},
}

const defaultZoneID = 1

// cropAliases accepts crop names beyond the exact catalog spelling.
var cropAliases = map[string]string{
	"tomate":     "TOM",
	"tomato":     "TOM",
	"aji":        "AJI",
	"chili":      "AJI",
	"banano":     "BAN",
	"banana":     "BAN",
	"guineo":     "BAN",
	"habichuela": "HAB",
	"frijol":     "HAB",
	"bean":       "HAB",
	"yuca":       "YUC",
	"cassava":    "YUC",
}

// startRegistration handles the REGISTER command. Registration is blocked
// purely by user-row existence; re-registering requires no planting check.
func (e *Engine) startRegistration(ctx context.Context, contactID string) string {
	exists, err := e.repo.UserExists(ctx, contactID)
	if err != nil {
		e.logger.Error("user existence check failed", "error", err, "contact", contactID)
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("repo").Inc()
		}
		return genericError
	}
	if exists {
		return alreadyRegisteredMessage
	}

	menu, err := e.cropMenu(ctx)
	if err != nil || len(menu) == 0 {
		e.logger.Error("load crop menu failed", "error", err)
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("repo").Inc()
		}
		return genericError
	}

	e.states.set(contactID, State{Step: StepSelectingCrop, Menu: menu})

	var b strings.Builder
	b.WriteString("Perfecto! ¿Qué estás cultivando?\n")
	for i, opt := range menu {
		fmt.Fprintf(&b, "%d - %s\n", i+1, opt.Name)
	}
	fmt.Fprintf(&b, "Envía solo el número (1-%d)", len(menu))
	return b.String()
}

// selectCrop resolves a crop by menu index or name alias. Invalid input
// re-prompts without changing state.
func (e *Engine) selectCrop(contactID string, st State, msg string) string {
	opt, ok := matchCrop(st.Menu, msg)
	if !ok {
		return fmt.Sprintf("Opción no válida. Envía un número del 1 al %d.", len(st.Menu))
	}

	st.CropCode = opt.Code
	st.CropName = opt.Name
	st.CycleDays = opt.CycleDays
	st.Step = StepAwaitingSowingDate
	e.states.set(contactID, st)

	return fmt.Sprintf("✅ ¡%s!\n\n¿Cuándo lo sembraste?\n- \"hoy\"\n- \"hace X días\"\n- \"hace X semanas\"\n- Fecha exacta (ej: 15/8/2025)", opt.Name)
}

func matchCrop(menu []cropOption, msg string) (cropOption, bool) {
	if idx, err := strconv.Atoi(msg); err == nil {
		if idx >= 1 && idx <= len(menu) {
			return menu[idx-1], true
		}
		return cropOption{}, false
	}

	code, hasAlias := cropAliases[msg]
	for _, opt := range menu {
		if normalize(opt.Name) == msg || (hasAlias && opt.Code == code) {
			return opt, true
		}
	}
	return cropOption{}, false
}

// captureSowingDate parses the date expression and freezes the elapsed-days
// snapshot at this moment; it is not recomputed at completion time.
func (e *Engine) captureSowingDate(contactID string, st State, msg string) string {
	date, ok := parseSowingDate(msg, e.now())
	if !ok {
		return invalidDateMessage
	}

	st.SowingDate = date
	st.ElapsedDays = elapsedDays(date, e.now())
	st.Step = StepAwaitingLocation
	e.states.set(contactID, st)

	return fmt.Sprintf("✅ Fecha registrada! (%d días desde siembra)\n\nPor último, ¿dónde estás ubicado?\nEj: \"Santiago\", \"Azua\", \"Constanza\"", st.ElapsedDays)
}

// completeRegistration resolves the zone from the location text and commits
// the registration transaction. On persistence failure the state is kept so
// the user can resend the location.
func (e *Engine) completeRegistration(ctx context.Context, contactID string, st State, msg string) string {
	zoneID := resolveZone(msg)

	planting, err := e.repo.CompleteRegistration(ctx, repo.Registration{
		ContactID:   contactID,
		DisplayName: "Agricultor " + st.CropName,
		ZoneID:      zoneID,
		CropCode:    st.CropCode,
		SowingDate:  st.SowingDate,
		ElapsedDays: st.ElapsedDays,
	})
	if err != nil {
		e.logger.Error("registration save failed", "error", err, "contact", contactID)
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("repo").Inc()
		}
		return saveFailedMessage
	}

	zoneName := "N/A"
	if zone, err := e.repo.GetZone(ctx, zoneID); err == nil {
		zoneName = zone.Name
	}

	e.states.clear(contactID)
	if e.metrics != nil {
		e.metrics.Registrations.Inc()
	}
	e.logger.Info("registration completed", "contact", contactID, "crop", st.CropCode, "zone", zoneID, "planting", planting.ID)

	return fmt.Sprintf("🎉 ¡REGISTRO COMPLETO!\n\nCultivo: %s\nFecha: %s\nZona: %s\nProgreso: %.1f%%\n\nAhora envía REPORTE.",
		st.CropName, st.SowingDate.Format("02/01/2006"), zoneName, advisory.Progress(st.ElapsedDays, st.CycleDays))
}

// resolveZone matches the location text against the keyword table,
// case-insensitive substring, first match wins.
func resolveZone(location string) int {
	for _, entry := range zoneKeywords {
		if strings.Contains(location, entry.Keyword) {
			return entry.ZoneID
		}
	}
	return defaultZoneID
}
