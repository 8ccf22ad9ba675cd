package optimize

import (
	"math"
	"time"

	"fieldcore/geo"
	"fieldcore/store"
)

// Priority weights penalize leaving a task unassigned.
var priorityWeights = map[string]int{
	store.PriorityUrgent: 1000,
	store.PriorityHigh:   500,
	store.PriorityMedium: 100,
	store.PriorityLow:    50,
}

func weightOf(priority string) int {
	if w, ok := priorityWeights[priority]; ok {
		return w
	}
	return 50
}

// Constraints override the configured defaults for one run. Zero values
// keep the defaults.
type Constraints struct {
	MaxWorkMinutes int     `json:"max_work_minutes,omitempty"`
	SetupMinutes   int     `json:"setup_minutes,omitempty"`
	TravelSpeedKmh float64 `json:"travel_speed_kmh,omitempty"`
}

// mtask is a task node in the routing model. loc indexes the travel
// matrix, -1 when the task has no coordinates.
type mtask struct {
	task     *store.Task
	customer string
	loc      int
	weight   int
}

type mtech struct {
	tech *store.Technician
	home int
}

// model is the immutable problem the strategies search over. It is
// built once per run from a roster snapshot.
type model struct {
	tasks    []*mtask
	techs    []*mtech
	matrix   *geo.Matrix
	setup    int
	capacity int
	date     time.Time
}

func (m *model) travel(a, b int) int {
	if a < 0 || b < 0 || a == b {
		return 0
	}
	return m.matrix.Minutes(a, b)
}

// duration is the task's estimate adjusted by the technician's
// efficiency factor.
func (m *model) duration(ti, vi int) int {
	est := m.tasks[ti].task.EstimatedMinutes
	if est <= 0 {
		est = 30
	}
	ef := m.techs[vi].tech.EfficiencyFactor
	if ef <= 0 {
		ef = 1
	}
	return int(math.Round(float64(est) / ef))
}

func (m *model) feasible(ti, vi int) bool {
	return m.techs[vi].tech.HasSkills(m.tasks[ti].task.RequiredSkills)
}

// solution maps each technician index to an ordered task-index route.
type solution struct {
	routes     [][]int
	unassigned map[int]bool
}

func newSolution(m *model) *solution {
	s := &solution{
		routes:     make([][]int, len(m.techs)),
		unassigned: make(map[int]bool, len(m.tasks)),
	}
	for i := range m.tasks {
		s.unassigned[i] = true
	}
	return s
}

func (s *solution) clone() *solution {
	c := &solution{
		routes:     make([][]int, len(s.routes)),
		unassigned: make(map[int]bool, len(s.unassigned)),
	}
	for i, r := range s.routes {
		c.routes[i] = append([]int(nil), r...)
	}
	for t := range s.unassigned {
		c.unassigned[t] = true
	}
	return c
}

// routeMinutes totals travel + setup + work for one route, home to
// home.
func (m *model) routeMinutes(vi int, route []int) (work, travel int) {
	if len(route) == 0 {
		return 0, 0
	}
	prev := m.techs[vi].home
	for _, ti := range route {
		travel += m.travel(prev, m.tasks[ti].loc)
		work += m.setup + m.duration(ti, vi)
		if m.tasks[ti].loc >= 0 {
			prev = m.tasks[ti].loc
		}
	}
	travel += m.travel(prev, m.techs[vi].home)
	return work, travel
}

func (m *model) routeFits(vi int, route []int) bool {
	work, travel := m.routeMinutes(vi, route)
	return work+travel <= m.capacity
}

// objective is the weighted cost the strategies minimize: total travel
// plus the priority weight of every unassigned task.
func (m *model) objective(s *solution) int {
	cost := 0
	for vi, route := range s.routes {
		_, travel := m.routeMinutes(vi, route)
		cost += travel
	}
	for ti := range s.unassigned {
		cost += m.tasks[ti].weight
	}
	return cost
}
