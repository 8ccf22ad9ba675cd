package predict

import "math"

const defaultIntervalDays = 90

// ruleDays applies the deterministic maintenance formula used when no
// trained model is loaded.
func ruleDays(fv FeatureVector) int {
	mfac := math.Min(2.0, fv[fOdometer]/50_000)
	ufac := fv[fUsageIntensity] / 10
	afac := fv[fDaysSinceMaintenance] / 365
	adj := 1 - (0.3*mfac + 0.2*ufac + 0.1*afac)
	days := int(math.Round(defaultIntervalDays * math.Max(0.1, adj)))
	if days < 1 {
		days = 1
	}
	return days
}

func ruleAnomaly(fv FeatureVector) bool {
	return fv[fBrakeWearPct] > 80 || fv[fTireWearPct] > 85 ||
		fv[fOilPressure] < 25 || fv[fDaysSinceMaintenance] > 365
}

// ruleRisk classifies days-to-maintenance for the rule engine. A
// detected anomaly lifts medium and low results to high: worn sensors
// outrank the interval formula.
func ruleRisk(days int, anomaly bool) string {
	level := riskLevel(days)
	if anomaly && (level == "medium" || level == "low") {
		return "high"
	}
	return level
}

// riskLevel discretizes days-to-maintenance. Monotone non-increasing.
func riskLevel(days int) string {
	switch {
	case days <= 7:
		return "critical"
	case days <= 14:
		return "high"
	case days <= 30:
		return "medium"
	default:
		return "low"
	}
}

// riskPriority maps a risk level to the default work order priority.
func riskPriority(level string) string {
	switch level {
	case "critical":
		return "urgent"
	case "high":
		return "high"
	case "medium":
		return "medium"
	default:
		return "low"
	}
}

type Recommendation struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ActionCode  string `json:"action_code"`
	Priority    string `json:"priority"`
}

func recommendations(fv FeatureVector, anomaly bool) []Recommendation {
	var recs []Recommendation
	if fv[fBrakeWearPct] > 75 {
		recs = append(recs, Recommendation{
			Type:        "wear",
			Title:       "Inspect brakes",
			Description: "Brake wear exceeds 75%, inspect pads and discs",
			ActionCode:  "check_brakes",
			Priority:    "high",
		})
	}
	if fv[fTireWearPct] > 80 {
		recs = append(recs, Recommendation{
			Type:        "wear",
			Title:       "Replace tires",
			Description: "Tire wear exceeds 80%, replacement recommended",
			ActionCode:  "replace_tires",
			Priority:    "high",
		})
	}
	if fv[fOilPressure] < 30 {
		recs = append(recs, Recommendation{
			Type:        "fluid",
			Title:       "Check oil system",
			Description: "Oil pressure below 30 psi, check level and pump",
			ActionCode:  "check_oil",
			Priority:    "medium",
		})
	}
	if anomaly {
		recs = append(recs, Recommendation{
			Type:        "anomaly",
			Title:       "Schedule inspection",
			Description: "Sensor readings deviate from the fleet baseline",
			ActionCode:  "schedule_inspection",
			Priority:    "medium",
		})
	}
	return recs
}
