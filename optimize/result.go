package optimize

import (
	"math"
	"time"
)

const (
	ModeFast     = "fast"
	ModeBalanced = "balanced"
	ModeQuality  = "quality"
)

// ScheduleEntry is one visit in a technician's day.
type ScheduleEntry struct {
	TaskID          int64     `json:"task_id"`
	Title           string    `json:"title"`
	CustomerName    string    `json:"customer_name"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	Priority        string    `json:"priority"`
	LocationLat     *float64  `json:"location_lat,omitempty"`
	LocationLng     *float64  `json:"location_lng,omitempty"`
}

type TechnicianRoute struct {
	TechnicianID  int64           `json:"technician_id"`
	DisplayName   string          `json:"display_name"`
	TaskIDs       []int64         `json:"task_ids"`
	Schedule      []ScheduleEntry `json:"schedule"`
	WorkMinutes   int             `json:"work_minutes"`
	TravelMinutes int             `json:"travel_minutes"`
}

// Result is the outcome of one optimizer run.
type Result struct {
	Mode                string            `json:"mode"`
	Date                time.Time         `json:"date"`
	Routes              []TechnicianRoute `json:"routes"`
	UnassignedTaskIDs   []int64           `json:"unassigned_task_ids"`
	TotalWorkMinutes    int               `json:"total_work_minutes"`
	TotalTravelMinutes  int               `json:"total_travel_minutes"`
	AssignedTasks       int               `json:"assigned_tasks"`
	TotalTasks          int               `json:"total_tasks"`
	EfficiencyScore     float64           `json:"efficiency_score"`
	CostOptimizationPct float64           `json:"cost_optimization_pct"`
	Notes               []string          `json:"notes,omitempty"`
	GeneratedAt         time.Time         `json:"generated_at"`
}

// efficiencyScore combines work ratio and assignment completeness into
// a [0,100] composite.
func efficiencyScore(workMin, travelMin, assigned, total int) float64 {
	workRatio := 0.0
	if workMin+travelMin > 0 {
		workRatio = float64(workMin) / float64(workMin+travelMin)
	}
	assignRate := 1.0
	if total > 0 {
		assignRate = float64(assigned) / float64(total)
	}
	score := 0.7*workRatio*100 + 0.3*assignRate*100
	return math.Round(score*10) / 10
}

// Scenario is one optimizer run enriched with deltas versus the
// scenario-set means.
type Scenario struct {
	ID     string             `json:"id"`
	Rank   int                `json:"rank"`
	Result *Result            `json:"result"`
	Deltas map[string]float64 `json:"deltas"`
}
