// Package advisory derives crop stages and rule-based recommendations from
// weather snapshots, and assembles the user-facing crop report.
package advisory

import (
	"fmt"
	"math"
	"strings"

	"conuco-bot/internal/repo"
	"conuco-bot/internal/weather"
)

// stageThreshold maps an exclusive elapsed-days upper bound to a stage name.
// The first entry whose threshold exceeds the elapsed days wins.
type stageThreshold struct {
	Below int
	Name  string
}

var stageTables = map[string][]stageThreshold{
	"TOM": shortCycleStages,
	"AJI": shortCycleStages,
	"HAB": shortCycleStages,
	"YUC": {
		{Below: 90, Name: "Establecimiento"},
		{Below: 240, Name: "Engrosamiento de Raíces"},
		{Below: math.MaxInt, Name: "Maduración"},
	},
}

var shortCycleStages = []stageThreshold{
	{Below: 25, Name: "Establecimiento / Vegetativo Temprano"},
	{Below: 50, Name: "Floración"},
	{Below: 75, Name: "Fructificación / Llenado de Fruto"},
	{Below: math.MaxInt, Name: "Maduración / Cosecha"},
}

// FallbackStage applies to crops without a stage table.
const FallbackStage = "Desarrollo General"

var stageTips = map[string]string{
	"Floración":                          "Es una fase crítica. Un buen nivel de Fósforo (P) y Potasio (K) puede mejorar la calidad de las flores y futuros frutos.",
	"Fructificación / Llenado de Fruto":  "Mantén la humedad del suelo estable; las fluctuaciones fuertes en esta fase rajan los frutos.",
	"Engrosamiento de Raíces":            "Evita encharcamientos prolongados; las raíces en engrosamiento son sensibles a la pudrición.",
}

const defaultTip = "Condiciones normales, continúa con las labores de rutina planificadas para esta etapa."

// Stage returns the growth stage of a crop given the elapsed days since
// sowing. Crops without a table are reported as FallbackStage.
func Stage(cropCode string, elapsedDays int) string {
	table, ok := stageTables[strings.ToUpper(cropCode)]
	if !ok {
		return FallbackStage
	}
	for _, entry := range table {
		if elapsedDays < entry.Below {
			return entry.Name
		}
	}
	return FallbackStage
}

// Progress computes the percent of the crop cycle completed, rounded to one
// decimal. A non-positive cycle length yields 0.
func Progress(elapsedDays, cycleDays int) float64 {
	if cycleDays <= 0 {
		return 0
	}
	return math.Round(float64(elapsedDays)/float64(cycleDays)*1000) / 10
}

// Recommend maps a weather snapshot and crop stage to an advisory line.
// Rules apply in order; the first match wins.
func Recommend(ws weather.Snapshot, cropName, cropCode string, elapsedDays int) string {
	switch {
	case ws.MaxTemp24h > 32 && ws.MeanHumidity > 80:
		return fmt.Sprintf("⚠️ ALERTA POR CALOR Y HUMEDAD: Se esperan %.1f°C con humedad alta. El riesgo de hongos es elevado. Revisa el drenaje y asegura buena ventilación en tu cultivo de %s.", ws.MaxTemp24h, cropName)
	case ws.MaxTemp24h > 32 && ws.MeanHumidity < 60:
		return fmt.Sprintf("🔥 SUGERENCIA POR CALOR SECO: Se esperan %.1f°C con poca humedad. El suelo está perdiendo agua. Considera un riego profundo para recargar la reserva de tus plantas.", ws.MaxTemp24h)
	case ws.RainProbability > 50:
		return fmt.Sprintf("💧 SUGERENCIA POR LLUVIA: Hay %.0f%% de probabilidad de lluvia hoy. Puedes posponer el riego y aprovechar el agua que viene.", ws.RainProbability)
	}

	stage := Stage(cropCode, elapsedDays)
	tip, ok := stageTips[stage]
	if !ok {
		tip = defaultTip
	}
	return fmt.Sprintf("✅ Condiciones estables. Tu cultivo está en '%s'.\n   💡 TIP: %s", stage, tip)
}

// HumidityDescriptor turns a mean humidity reading into a qualitative label.
func HumidityDescriptor(humidity float64) string {
	switch {
	case humidity > 85:
		return "muy húmedo"
	case humidity < 60:
		return "seco"
	default:
		return "humedad normal"
	}
}

const unavailableLine = "No se pudieron obtener datos del clima."

// BuildReport assembles the report text in fixed order: header, weather
// line, advisory, optional market price. It returns the full report and the
// recommendation shown (empty when weather was unavailable, in which case
// the advice is skipped). The retail markup is a configured constant added
// to the wholesale price.
func BuildReport(s repo.PlantingSnapshot, ws *weather.Snapshot, elapsedDays int, markup float64) (report, recommendation string) {
	var b strings.Builder
	b.WriteString("📊 REPORTE DE CULTIVO\n\n")
	b.WriteString(fmt.Sprintf("🌱 Cultivo: %s\n", s.CropName))
	b.WriteString(fmt.Sprintf("📅 Días: %d\n", elapsedDays))
	b.WriteString(fmt.Sprintf("📈 Progreso: %.1f%%\n", Progress(elapsedDays, s.CycleDays)))
	b.WriteString(fmt.Sprintf("📍 Zona: %s\n", s.ZoneName))

	if ws != nil {
		b.WriteString("\n☀️ CLIMA (Hoy)\n")
		b.WriteString(fmt.Sprintf("   🌡️ Temp. Máx: %.1f°C\n", ws.MaxTemp24h))
		b.WriteString(fmt.Sprintf("   💧 Humedad: %s\n", HumidityDescriptor(ws.MeanHumidity)))

		recommendation = Recommend(*ws, s.CropName, s.CropCode, elapsedDays)
		b.WriteString("\n💡 SUGERENCIA\n   " + recommendation + "\n")
	} else {
		b.WriteString("\n" + unavailableLine + "\n")
	}

	if s.MarketPrice != nil {
		trend := "estable"
		if s.PriceTrend != nil {
			trend = *s.PriceTrend
		}
		b.WriteString("\n💰 Precio Mercado (MERCADOM):\n")
		b.WriteString(fmt.Sprintf("   RD$%.2f/libra mayorista (%s)\n", *s.MarketPrice, trend))
		b.WriteString(fmt.Sprintf("   RD$%.2f/libra detalle estimado\n", *s.MarketPrice+markup))
	}

	return strings.TrimRight(b.String(), "\n"), recommendation
}
