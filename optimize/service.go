// Package optimize plans technician routes over the schedulable task
// set. Three strategies trade solution quality for latency; every run
// falls back to a priority-greedy heuristic rather than failing.
package optimize

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldcore/config"
	"fieldcore/fault"
	"fieldcore/geo"
	"fieldcore/lifecycle"
	"fieldcore/store"
)

type Service struct {
	db  *store.DB
	cfg *config.Config
	lc  *lifecycle.Service

	mu        sync.Mutex
	scenarios map[string]*Scenario
}

func NewService(db *store.DB, cfg *config.Config, lc *lifecycle.Service) *Service {
	return &Service{db: db, cfg: cfg, lc: lc, scenarios: make(map[string]*Scenario)}
}

func (s *Service) timeoutFor(mode string) time.Duration {
	switch mode {
	case ModeFast:
		return s.cfg.Scheduling.TimeoutFast
	case ModeQuality:
		return s.cfg.Scheduling.TimeoutQuality
	default:
		return s.cfg.Scheduling.TimeoutBalanced
	}
}

func normalizeMode(mode string) (string, error) {
	switch mode {
	case "", ModeBalanced:
		return ModeBalanced, nil
	case ModeFast, ModeQuality:
		return mode, nil
	default:
		return "", fault.InvalidInput("unknown optimizer mode %q", mode)
	}
}

// Optimize plans routes for the schedulable tasks on a date. Empty
// task or roster sets produce a well-formed empty result.
func (s *Service) Optimize(ctx context.Context, date time.Time, mode string, c Constraints) (*Result, error) {
	mode, err := normalizeMode(mode)
	if err != nil {
		return nil, err
	}
	tasks, err := s.db.ListSchedulableTasks()
	if err != nil {
		return nil, fault.Internal(err)
	}
	techs, err := s.db.ListActiveTechnicians()
	if err != nil {
		return nil, fault.Internal(err)
	}
	return s.run(ctx, date, mode, c, tasks, techs)
}

// OptimizeDay resequences one technician's assigned tasks.
func (s *Service) OptimizeDay(ctx context.Context, techID int64, date time.Time) (*Result, error) {
	tech, err := s.db.GetTechnician(techID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("technician %d not found", techID)
		}
		return nil, fault.Internal(err)
	}
	tasks, err := s.db.ListTasksByTechnician(techID, store.TaskStatusAssigned)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return s.run(ctx, date, ModeBalanced, Constraints{}, tasks, []*store.Technician{tech})
}

// GenerateScenarios runs up to n distinct-mode scenarios and annotates
// each with deltas versus the scenario-set mean, ranked by efficiency.
func (s *Service) GenerateScenarios(ctx context.Context, date time.Time, n int) ([]*Scenario, error) {
	if n <= 0 {
		n = 3
	}
	if n > 5 {
		n = 5
	}
	modes := []string{ModeFast, ModeBalanced, ModeQuality, ModeFast, ModeBalanced}[:n]

	var scenarios []*Scenario
	for _, mode := range modes {
		res, err := s.Optimize(ctx, date, mode, Constraints{})
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, &Scenario{ID: uuid.NewString(), Result: res})
	}

	var meanEff, meanTravel, meanAssigned float64
	for _, sc := range scenarios {
		meanEff += sc.Result.EfficiencyScore
		meanTravel += float64(sc.Result.TotalTravelMinutes)
		meanAssigned += float64(sc.Result.AssignedTasks)
	}
	fn := float64(len(scenarios))
	meanEff, meanTravel, meanAssigned = meanEff/fn, meanTravel/fn, meanAssigned/fn
	for _, sc := range scenarios {
		sc.Deltas = map[string]float64{
			"efficiency_score":     sc.Result.EfficiencyScore - meanEff,
			"total_travel_minutes": float64(sc.Result.TotalTravelMinutes) - meanTravel,
			"assigned_tasks":       float64(sc.Result.AssignedTasks) - meanAssigned,
		}
	}
	sort.SliceStable(scenarios, func(i, j int) bool {
		return scenarios[i].Result.EfficiencyScore > scenarios[j].Result.EfficiencyScore
	})
	s.mu.Lock()
	for i, sc := range scenarios {
		sc.Rank = i + 1
		s.scenarios[sc.ID] = sc
	}
	s.mu.Unlock()
	return scenarios, nil
}

// Assignment is one task placement in an apply request.
type Assignment struct {
	TaskID         int64      `json:"task_id"`
	TechnicianID   int64      `json:"technician_id"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
}

type ApplyResult struct {
	Applied []int64          `json:"applied"`
	Skipped []int64          `json:"skipped"`
	Failed  map[int64]string `json:"failed,omitempty"`
}

// Apply commits scenario assignments to the task set. Re-applying the
// same assignments is a no-op per task; tasks another actor changed
// mid-flight are reported in Failed.
func (s *Service) Apply(scenarioID string, assignments []Assignment, confirmed bool) (*ApplyResult, error) {
	if !confirmed {
		return nil, fault.InvalidInput("apply requires confirmed=true")
	}
	if scenarioID != "" {
		s.mu.Lock()
		_, ok := s.scenarios[scenarioID]
		s.mu.Unlock()
		if !ok {
			return nil, fault.NotFound("scenario %s not found", scenarioID)
		}
	}
	res := &ApplyResult{Failed: make(map[int64]string)}
	for _, a := range assignments {
		task, err := s.db.GetTask(a.TaskID)
		if err != nil {
			res.Failed[a.TaskID] = "task not found"
			continue
		}
		switch task.Status {
		case store.TaskStatusAssigned:
			if task.AssignedTechnicianID != nil && *task.AssignedTechnicianID == a.TechnicianID {
				res.Skipped = append(res.Skipped, a.TaskID)
				continue
			}
			res.Failed[a.TaskID] = fmt.Sprintf("already assigned to technician %d", deref(task.AssignedTechnicianID))
			continue
		case store.TaskStatusPending:
		default:
			res.Failed[a.TaskID] = fmt.Sprintf("task is %s", task.Status)
			continue
		}
		if _, err := s.lc.Assign(a.TaskID, a.TechnicianID); err != nil {
			res.Failed[a.TaskID] = err.Error()
			continue
		}
		if a.ScheduledStart != nil || a.ScheduledEnd != nil {
			if err := s.db.UpdateTaskSchedule(a.TaskID, a.ScheduledStart, a.ScheduledEnd); err != nil {
				res.Failed[a.TaskID] = err.Error()
				continue
			}
		}
		res.Applied = append(res.Applied, a.TaskID)
	}
	if len(res.Failed) == 0 {
		res.Failed = nil
	}
	return res, nil
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

// run builds the model, executes the strategy under its deadline and
// falls back to the heuristic when the strategy leaves work on the
// table that the heuristic can place.
func (s *Service) run(ctx context.Context, date time.Time, mode string, c Constraints, tasks []*store.Task, techs []*store.Technician) (*Result, error) {
	now := time.Now()
	if len(tasks) == 0 || len(techs) == 0 {
		return &Result{Mode: mode, Date: date, UnassignedTaskIDs: []int64{}, GeneratedAt: now}, nil
	}
	m, names, err := s.buildModel(date, c, tasks, techs)
	if err != nil {
		return nil, err
	}

	deadline, cancel := context.WithTimeout(ctx, s.timeoutFor(mode))
	defer cancel()
	var notes []string
	sol := strategyFor(mode).Solve(deadline, m)
	if sol == nil || allUnassigned(sol) {
		sol = fallbackSolve(m)
		notes = append(notes, "strategy produced no assignments, heuristic fallback used")
	} else if fb := fallbackSolve(m); m.objective(fb) < m.objective(sol) {
		sol = fb
		notes = append(notes, "heuristic fallback outperformed strategy within deadline")
	}
	if deadline.Err() != nil {
		notes = append(notes, "deadline reached, returning best solution found")
	}
	res := s.buildResult(m, sol, mode, date, names)
	res.Notes = notes
	res.GeneratedAt = now
	log.Printf("optimize: mode=%s tasks=%d techs=%d assigned=%d travel=%dmin score=%.1f",
		mode, len(tasks), len(techs), res.AssignedTasks, res.TotalTravelMinutes, res.EfficiencyScore)
	return res, nil
}

func allUnassigned(sol *solution) bool {
	for _, r := range sol.routes {
		if len(r) > 0 {
			return false
		}
	}
	return true
}

// buildModel snapshots the roster and task set into the immutable
// routing model. Task locations come from the work order, falling back
// to the customer.
func (s *Service) buildModel(date time.Time, c Constraints, tasks []*store.Task, techs []*store.Technician) (*model, map[int64]string, error) {
	speed := c.TravelSpeedKmh
	if speed <= 0 {
		speed = s.cfg.Scheduling.TravelSpeedKmh
	}
	setup := c.SetupMinutes
	if setup <= 0 {
		setup = s.cfg.Scheduling.SetupMinutes
	}
	capacity := c.MaxWorkMinutes
	if capacity <= 0 {
		capacity = s.cfg.Scheduling.MaxWorkMinutes
	}

	var points []geo.Point
	addPoint := func(lat, lng *float64) int {
		if lat == nil || lng == nil {
			return -1
		}
		points = append(points, geo.Point{Lat: *lat, Lng: *lng})
		return len(points) - 1
	}

	m := &model{setup: setup, capacity: capacity, date: date}
	for _, t := range techs {
		m.techs = append(m.techs, &mtech{tech: t, home: addPoint(t.HomeLat, t.HomeLng)})
	}

	customerNames := make(map[int64]string)
	woCache := make(map[int64]*store.WorkOrder)
	for _, t := range tasks {
		wo, ok := woCache[t.WorkOrderID]
		if !ok {
			var err error
			wo, err = s.db.GetWorkOrder(t.WorkOrderID)
			if err != nil {
				return nil, nil, fault.Internal(err)
			}
			woCache[t.WorkOrderID] = wo
		}
		lat, lng := wo.LocationLat, wo.LocationLng
		name := customerNames[wo.CustomerID]
		if name == "" {
			customer, err := s.db.GetCustomer(wo.CustomerID)
			if err == nil {
				name = customer.DisplayName
				customerNames[wo.CustomerID] = name
				if lat == nil {
					lat, lng = customer.Latitude, customer.Longitude
				}
			}
		}
		m.tasks = append(m.tasks, &mtask{
			task:     t,
			customer: name,
			loc:      addPoint(lat, lng),
			weight:   weightOf(t.Priority),
		})
	}
	m.matrix = geo.NewMatrix(points, speed)

	names := make(map[int64]string, len(customerNames))
	for id, n := range customerNames {
		names[id] = n
	}
	return m, names, nil
}

// buildResult converts a solution into the public result, computing
// sequential visit times from each technician's availability window.
func (s *Service) buildResult(m *model, sol *solution, mode string, date time.Time, _ map[int64]string) *Result {
	res := &Result{Mode: mode, Date: date, TotalTasks: len(m.tasks), UnassignedTaskIDs: []int64{}}

	var naiveTravel int
	for vi, route := range sol.routes {
		if len(route) == 0 {
			continue
		}
		tech := m.techs[vi]
		work, travel := m.routeMinutes(vi, route)
		tr := TechnicianRoute{
			TechnicianID:  tech.tech.ID,
			DisplayName:   tech.tech.DisplayName,
			WorkMinutes:   work,
			TravelMinutes: travel,
		}

		cursor := dayStart(date, tech.tech.AvailStart)
		prev := tech.home
		for _, ti := range route {
			mt := m.tasks[ti]
			cursor = cursor.Add(time.Duration(m.travel(prev, mt.loc)) * time.Minute)
			dur := m.duration(ti, vi)
			start := cursor.Add(time.Duration(m.setup) * time.Minute)
			end := start.Add(time.Duration(dur) * time.Minute)
			tr.TaskIDs = append(tr.TaskIDs, mt.task.ID)
			tr.Schedule = append(tr.Schedule, ScheduleEntry{
				TaskID:          mt.task.ID,
				Title:           mt.task.Title,
				CustomerName:    mt.customer,
				Start:           start,
				End:             end,
				DurationMinutes: dur,
				Priority:        mt.task.Priority,
				LocationLat:     latOf(m, mt.loc),
				LocationLng:     lngOf(m, mt.loc),
			})
			cursor = end
			if mt.loc >= 0 {
				prev = mt.loc
			}
			naiveTravel += 2 * m.travel(tech.home, mt.loc)
		}
		res.Routes = append(res.Routes, tr)
		res.TotalWorkMinutes += work
		res.TotalTravelMinutes += travel
		res.AssignedTasks += len(route)
	}

	unassigned := make([]int, 0, len(sol.unassigned))
	for ti := range sol.unassigned {
		unassigned = append(unassigned, ti)
	}
	sort.Ints(unassigned)
	for _, ti := range unassigned {
		res.UnassignedTaskIDs = append(res.UnassignedTaskIDs, m.tasks[ti].task.ID)
	}

	res.EfficiencyScore = efficiencyScore(res.TotalWorkMinutes, res.TotalTravelMinutes,
		res.AssignedTasks, res.TotalTasks)
	if naiveTravel > 0 {
		pct := (1 - float64(res.TotalTravelMinutes)/float64(naiveTravel)) * 100
		if pct < 0 {
			pct = 0
		}
		res.CostOptimizationPct = float64(int(pct*10)) / 10
	}
	return res
}

func latOf(m *model, loc int) *float64 {
	if loc < 0 {
		return nil
	}
	p := m.matrix.Point(loc)
	return &p.Lat
}

func lngOf(m *model, loc int) *float64 {
	if loc < 0 {
		return nil
	}
	p := m.matrix.Point(loc)
	return &p.Lng
}

// dayStart anchors a clock string like "08:00" on the given date.
func dayStart(date time.Time, clock string) time.Time {
	h, min := 8, 0
	if parts := strings.SplitN(clock, ":", 2); len(parts) == 2 {
		if v, err := strconv.Atoi(parts[0]); err == nil {
			h = v
		}
		if v, err := strconv.Atoi(parts[1]); err == nil {
			min = v
		}
	}
	return time.Date(date.Year(), date.Month(), date.Day(), h, min, 0, 0, date.Location())
}
