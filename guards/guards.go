// Package guards holds the named predicates checked before work order
// closure and intervention start. The closure set is a data-driven list
// so new business rules land as entries, not new branches at the call
// site.
package guards

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"fieldcore/fault"
	"fieldcore/store"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Check is the outcome of one predicate.
type Check struct {
	PredicateID string         `json:"predicate_id"`
	OK          bool           `json:"ok"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Severity    Severity       `json:"severity"`
}

// woContext is the materialized work order state the predicates read.
type woContext struct {
	wo            *store.WorkOrder
	tasks         []*store.Task
	interventions []*store.Intervention
	notes         []*store.InterventionNote
	parts         []*store.WorkOrderPart
	media         []*store.InterventionMedia
}

type predicate struct {
	id   string
	eval func(*woContext) Check
}

var noPartsNoteRe = regexp.MustCompile(`(?i)aucune pièce|no parts|sans pièce`)

var closurePredicates = []predicate{
	{id: "one_task_done", eval: checkOneTaskDone},
	{id: "interventions_timed", eval: checkInterventionsTimed},
	{id: "parts_documentation", eval: checkPartsDocumentation},
	{id: "notes_present", eval: checkNotesPresent},
	{id: "business_rules", eval: checkBusinessRules},
	{id: "quality_media", eval: checkQualityMedia},
}

func checkOneTaskDone(ctx *woContext) Check {
	done := 0
	for _, t := range ctx.tasks {
		if t.Status == store.TaskStatusDone {
			done++
		}
	}
	if done == 0 {
		return Check{PredicateID: "one_task_done", Severity: SeverityError,
			Message: "no task is done"}
	}
	return Check{PredicateID: "one_task_done", OK: true, Severity: SeverityError,
		Details: map[string]any{"done_tasks": done}}
}

func checkInterventionsTimed(ctx *woContext) Check {
	total := 0
	for _, iv := range ctx.interventions {
		if iv.EndedAt == nil {
			return Check{PredicateID: "interventions_timed", Severity: SeverityError,
				Message: fmt.Sprintf("intervention %d has no end time", iv.ID),
				Details: map[string]any{"intervention_id": iv.ID}}
		}
		total += iv.DurationMinutes()
	}
	if total < 15 {
		return Check{PredicateID: "interventions_timed", Severity: SeverityError,
			Message: fmt.Sprintf("total logged time is %d minutes, need at least 15", total),
			Details: map[string]any{"total_minutes": total}}
	}
	return Check{PredicateID: "interventions_timed", OK: true, Severity: SeverityError,
		Details: map[string]any{"total_minutes": total}}
}

func checkPartsDocumentation(ctx *woContext) Check {
	if len(ctx.parts) > 0 {
		for _, p := range ctx.parts {
			if p.UnitPrice == 0 {
				return Check{PredicateID: "parts_documentation", Severity: SeverityError,
					Message: fmt.Sprintf("part %q has no unit price", p.Name),
					Details: map[string]any{"part_id": p.ID}}
			}
		}
		return Check{PredicateID: "parts_documentation", OK: true, Severity: SeverityError,
			Details: map[string]any{"parts_lines": len(ctx.parts)}}
	}
	for _, n := range ctx.notes {
		if noPartsNoteRe.MatchString(n.Body) {
			return Check{PredicateID: "parts_documentation", OK: true, Severity: SeverityError}
		}
	}
	return Check{PredicateID: "parts_documentation", Severity: SeverityError,
		Message: "no parts lines and no note stating no parts were used"}
}

func checkNotesPresent(ctx *woContext) Check {
	byIntervention := make(map[int64]int)
	short := 0
	for _, n := range ctx.notes {
		byIntervention[n.InterventionID]++
		if len([]rune(n.Body)) < 10 {
			short++
		}
	}
	for _, iv := range ctx.interventions {
		if byIntervention[iv.ID] == 0 {
			return Check{PredicateID: "notes_present", Severity: SeverityError,
				Message: fmt.Sprintf("intervention %d has no notes", iv.ID),
				Details: map[string]any{"intervention_id": iv.ID}}
		}
	}
	if short > 0 {
		return Check{PredicateID: "notes_present", Severity: SeverityWarning,
			Message: fmt.Sprintf("%d note(s) shorter than 10 characters", short),
			Details: map[string]any{"short_notes": short}}
	}
	return Check{PredicateID: "notes_present", OK: true, Severity: SeverityError}
}

func checkBusinessRules(ctx *woContext) Check {
	for _, t := range ctx.tasks {
		if t.Terminal() {
			continue
		}
		if t.Priority == store.PriorityUrgent {
			return Check{PredicateID: "business_rules", Severity: SeverityError,
				Message: fmt.Sprintf("urgent task %d is still %s", t.ID, t.Status),
				Details: map[string]any{"task_id": t.ID}}
		}
	}
	for _, t := range ctx.tasks {
		if !t.Terminal() && t.TaskSource == store.TaskSourceRequested {
			return Check{PredicateID: "business_rules", Severity: SeverityWarning,
				Message: fmt.Sprintf("requested task %d is still %s", t.ID, t.Status),
				Details: map[string]any{"task_id": t.ID}}
		}
	}
	return Check{PredicateID: "business_rules", OK: true, Severity: SeverityError}
}

func checkQualityMedia(ctx *woContext) Check {
	var before, after bool
	for _, m := range ctx.media {
		if m.IsBeforeWork {
			before = true
		}
		if m.IsAfterWork {
			after = true
		}
	}
	if !before || !after {
		return Check{PredicateID: "quality_media", Severity: SeverityWarning,
			Message: "before/after media missing"}
	}
	return Check{PredicateID: "quality_media", OK: true, Severity: SeverityWarning}
}

type Service struct {
	db *store.DB
}

func NewService(db *store.DB) *Service {
	return &Service{db: db}
}

// EvaluateClosure runs the closure predicate set against the work
// order's current state and returns every outcome.
func (s *Service) EvaluateClosure(workOrderID int64) ([]Check, error) {
	ctx, err := s.load(workOrderID)
	if err != nil {
		return nil, err
	}
	checks := make([]Check, 0, len(closurePredicates))
	for _, p := range closurePredicates {
		checks = append(checks, p.eval(ctx))
	}
	return checks, nil
}

// ClosureAllowed reports whether the checks permit closing: no failing
// error-severity predicate. Warnings never block.
func ClosureAllowed(checks []Check) bool {
	for _, c := range checks {
		if !c.OK && c.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Failures returns the non-passing checks, errors first.
func Failures(checks []Check) []Check {
	var out []Check
	for _, c := range checks {
		if !c.OK && c.Severity == SeverityError {
			out = append(out, c)
		}
	}
	for _, c := range checks {
		if !c.OK && c.Severity == SeverityWarning {
			out = append(out, c)
		}
	}
	return out
}

// Warnings returns the failing warning-severity checks.
func Warnings(checks []Check) []Check {
	var out []Check
	for _, c := range checks {
		if !c.OK && c.Severity == SeverityWarning {
			out = append(out, c)
		}
	}
	return out
}

// CanStartIntervention enforces the start preconditions: the task is
// assigned, the caller is the assignee (or a supervisor), and no
// intervention is already open for the task.
func (s *Service) CanStartIntervention(task *store.Task, techID int64, supervisor bool) error {
	if task.Status != store.TaskStatusAssigned {
		return fault.InvalidTransition(task.Status, store.TaskStatusInProgress,
			"task must be assigned before starting")
	}
	if task.AssignedTechnicianID == nil || *task.AssignedTechnicianID != techID {
		if !supervisor {
			return fault.GuardFailed("can_start_intervention",
				"task is assigned to a different technician")
		}
	}
	iv, err := s.db.GetInterventionByTask(task.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fault.Internal(err)
	}
	if err == nil && iv.EndedAt == nil {
		return fault.Conflict("intervention %d is already open for task %d", iv.ID, task.ID)
	}
	return nil
}

func (s *Service) load(workOrderID int64) (*woContext, error) {
	wo, err := s.db.GetWorkOrder(workOrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("work order %d not found", workOrderID)
		}
		return nil, fault.Internal(err)
	}
	tasks, err := s.db.ListTasksByWorkOrder(workOrderID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	interventions, err := s.db.ListInterventionsByWorkOrder(workOrderID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	notes, err := s.db.ListNotesByWorkOrder(workOrderID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	parts, err := s.db.ListPartsByWorkOrder(workOrderID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	media, err := s.db.ListMediaByWorkOrder(workOrderID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return &woContext{wo: wo, tasks: tasks, interventions: interventions,
		notes: notes, parts: parts, media: media}, nil
}
