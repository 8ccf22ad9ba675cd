// Package lifecycle drives the task and work order state machines.
// All transitions for one work order serialize on a keyed lock;
// different work orders proceed in parallel.
package lifecycle

import (
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldcore/fault"
	"fieldcore/guards"
	"fieldcore/store"
)

type Emitter interface {
	WorkOrderCreated(workOrderID int64)
	WorkOrderStatusChanged(workOrderID int64, status, detail string)
	WorkOrderClosed(workOrderID int64)
	TaskAssigned(taskID, workOrderID, technicianID int64)
	TaskUnassigned(taskID, workOrderID int64)
	TaskStarted(taskID, workOrderID, technicianID int64)
	TaskCompleted(taskID, workOrderID int64)
	TaskCancelled(taskID, workOrderID int64)
}

type Service struct {
	db      *store.DB
	guards  *guards.Service
	emitter Emitter
	locks   *keyedMutex
	now     func() time.Time
}

func NewService(db *store.DB, g *guards.Service, emitter Emitter) *Service {
	return &Service{db: db, guards: g, emitter: emitter, locks: newKeyedMutex(), now: time.Now}
}

// CreateWorkOrderParams is the request surface for new work orders.
type CreateWorkOrderParams struct {
	CustomerID  int64    `json:"customer_id"`
	VehicleID   *int64   `json:"vehicle_id,omitempty"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	CreatedBy   string   `json:"created_by"`
	ClaimNumber string   `json:"claim_number"`
	Status      string   `json:"status"`
	LocationLat *float64 `json:"location_lat,omitempty"`
	LocationLng *float64 `json:"location_lng,omitempty"`
}

func validPriority(p string) bool {
	switch p {
	case store.PriorityLow, store.PriorityMedium, store.PriorityHigh, store.PriorityUrgent:
		return true
	}
	return false
}

func (s *Service) CreateWorkOrder(p CreateWorkOrderParams) (*store.WorkOrder, error) {
	customer, err := s.db.GetCustomer(p.CustomerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("customer %d not found", p.CustomerID)
		}
		return nil, fault.Internal(err)
	}
	if p.VehicleID != nil {
		if _, err := s.db.GetVehicle(*p.VehicleID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fault.NotFound("vehicle %d not found", *p.VehicleID)
			}
			return nil, fault.Internal(err)
		}
	}
	if p.Priority == "" {
		p.Priority = store.PriorityMedium
	}
	if !validPriority(p.Priority) {
		return nil, fault.InvalidInput("unknown priority %q", p.Priority)
	}
	status := p.Status
	if status == "" {
		status = store.WOStatusDraft
	}
	if status != store.WOStatusDraft && status != store.WOStatusPending {
		return nil, fault.InvalidInput("new work orders start as draft or pending, not %q", status)
	}
	claim := p.ClaimNumber
	if claim == "" {
		claim = "WO-" + strings.ToUpper(uuid.NewString()[:8])
	}
	lat, lng := p.LocationLat, p.LocationLng
	if lat == nil && customer.Latitude != nil {
		lat, lng = customer.Latitude, customer.Longitude
	}
	wo := &store.WorkOrder{
		ClaimNumber: claim,
		CustomerID:  p.CustomerID,
		VehicleID:   p.VehicleID,
		Description: p.Description,
		Priority:    p.Priority,
		Status:      status,
		CreatedBy:   p.CreatedBy,
		LocationLat: lat,
		LocationLng: lng,
	}
	if err := s.db.CreateWorkOrder(wo); err != nil {
		return nil, fault.Internal(err)
	}
	if err := s.db.UpdateWorkOrderStatus(wo.ID, status, "work order created"); err != nil {
		return nil, fault.Internal(err)
	}
	if s.emitter != nil {
		s.emitter.WorkOrderCreated(wo.ID)
	}
	return wo, nil
}

// AddTask appends a task to a non-terminal work order.
func (s *Service) AddTask(t *store.Task) (*store.Task, error) {
	wo, err := s.getWorkOrder(t.WorkOrderID)
	if err != nil {
		return nil, err
	}
	if wo.Status == store.WOStatusCompleted || wo.Status == store.WOStatusCancelled {
		return nil, fault.InvalidTransition(wo.Status, wo.Status, "cannot add tasks to a closed work order")
	}
	if t.Title == "" {
		return nil, fault.InvalidInput("task title is required")
	}
	if t.Priority == "" {
		t.Priority = wo.Priority
	}
	if !validPriority(t.Priority) {
		return nil, fault.InvalidInput("unknown priority %q", t.Priority)
	}
	if err := s.db.CreateTask(t); err != nil {
		return nil, fault.Internal(err)
	}
	return t, nil
}

// Assign moves a pending task to assigned.
func (s *Service) Assign(taskID, techID int64) (*store.Task, error) {
	task, err := s.getTask(taskID)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(task.WorkOrderID)
	defer s.locks.Unlock(task.WorkOrderID)

	task, err = s.getTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != store.TaskStatusPending {
		return nil, fault.InvalidTransition(task.Status, store.TaskStatusAssigned, "only pending tasks can be assigned")
	}
	tech, err := s.db.GetTechnician(techID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("technician %d not found", techID)
		}
		return nil, fault.Internal(err)
	}
	if !tech.Active {
		return nil, fault.InvalidInput("technician %d is inactive", techID)
	}
	if !tech.HasSkills(task.RequiredSkills) {
		log.Printf("lifecycle: task %d assigned to technician %d without matching skills %v",
			taskID, techID, task.RequiredSkills)
	}
	if err := s.db.UpdateTaskAssignment(taskID, &techID, store.TaskStatusAssigned); err != nil {
		return nil, fault.Internal(err)
	}
	if err := s.syncWorkOrder(task.WorkOrderID); err != nil {
		return nil, err
	}
	if s.emitter != nil {
		s.emitter.TaskAssigned(taskID, task.WorkOrderID, techID)
	}
	return s.getTask(taskID)
}

// Unassign returns an assigned task to pending and clears the assignee.
func (s *Service) Unassign(taskID int64) (*store.Task, error) {
	task, err := s.getTask(taskID)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(task.WorkOrderID)
	defer s.locks.Unlock(task.WorkOrderID)

	task, err = s.getTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != store.TaskStatusAssigned {
		return nil, fault.InvalidTransition(task.Status, store.TaskStatusPending, "only assigned tasks can be unassigned")
	}
	if err := s.db.UpdateTaskAssignment(taskID, nil, store.TaskStatusPending); err != nil {
		return nil, fault.Internal(err)
	}
	if err := s.syncWorkOrder(task.WorkOrderID); err != nil {
		return nil, err
	}
	if s.emitter != nil {
		s.emitter.TaskUnassigned(taskID, task.WorkOrderID)
	}
	return s.getTask(taskID)
}

// Start opens the intervention for an assigned task. Supervisors may
// start tasks assigned to someone else.
func (s *Service) Start(taskID, techID int64, supervisor bool) (*store.Intervention, error) {
	task, err := s.getTask(taskID)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(task.WorkOrderID)
	defer s.locks.Unlock(task.WorkOrderID)

	task, err = s.getTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == store.TaskStatusInProgress {
		return nil, fault.Conflict("task %d is already in progress", taskID)
	}
	if err := s.guards.CanStartIntervention(task, techID, supervisor); err != nil {
		return nil, err
	}
	now := s.now()
	iv := &store.Intervention{
		TaskID:       taskID,
		WorkOrderID:  task.WorkOrderID,
		TechnicianID: techID,
		StartedAt:    now,
	}
	if err := s.db.CreateIntervention(iv); err != nil {
		return nil, fault.Internal(err)
	}
	if err := s.db.MarkTaskStarted(taskID, now); err != nil {
		return nil, fault.Internal(err)
	}
	if err := s.syncWorkOrder(task.WorkOrderID); err != nil {
		return nil, err
	}
	if s.emitter != nil {
		s.emitter.TaskStarted(taskID, task.WorkOrderID, techID)
	}
	return iv, nil
}

// Complete finishes an in-progress task and freezes its intervention.
func (s *Service) Complete(taskID int64, result, summary string) (*store.Task, error) {
	task, err := s.getTask(taskID)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(task.WorkOrderID)
	defer s.locks.Unlock(task.WorkOrderID)

	task, err = s.getTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != store.TaskStatusInProgress {
		return nil, fault.InvalidTransition(task.Status, store.TaskStatusDone, "only in-progress tasks can be completed")
	}
	if result == "" {
		result = store.ResultOK
	}
	iv, err := s.db.GetInterventionByTask(taskID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	now := s.now()
	if err := s.db.CloseIntervention(iv.ID, now, result, summary); err != nil {
		return nil, fault.Internal(err)
	}
	if err := s.db.MarkTaskCompleted(taskID, now); err != nil {
		return nil, fault.Internal(err)
	}
	if err := s.syncWorkOrder(task.WorkOrderID); err != nil {
		return nil, err
	}
	if s.emitter != nil {
		s.emitter.TaskCompleted(taskID, task.WorkOrderID)
	}
	return s.getTask(taskID)
}

// Cancel aborts a non-terminal task, closing any open intervention.
func (s *Service) Cancel(taskID int64, reason string) (*store.Task, error) {
	task, err := s.getTask(taskID)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(task.WorkOrderID)
	defer s.locks.Unlock(task.WorkOrderID)

	task, err = s.getTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Terminal() {
		return nil, fault.InvalidTransition(task.Status, store.TaskStatusCancelled, "task is already terminal")
	}
	iv, err := s.db.GetInterventionByTask(taskID)
	if err == nil && iv.EndedAt == nil {
		if err := s.db.CloseIntervention(iv.ID, s.now(), store.ResultCancelled, reason); err != nil {
			return nil, fault.Internal(err)
		}
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fault.Internal(err)
	}
	if err := s.db.UpdateTaskStatus(taskID, store.TaskStatusCancelled); err != nil {
		return nil, fault.Internal(err)
	}
	if err := s.syncWorkOrder(task.WorkOrderID); err != nil {
		return nil, err
	}
	if s.emitter != nil {
		s.emitter.TaskCancelled(taskID, task.WorkOrderID)
	}
	return s.getTask(taskID)
}

// CloseResult reports the guard outcomes of a closure attempt.
type CloseResult struct {
	OK       bool           `json:"ok"`
	Warnings []guards.Check `json:"warnings,omitempty"`
	Failures []guards.Check `json:"failures,omitempty"`
}

// Close completes a work order after the closure guards pass. On guard
// failure the full failing set comes back alongside the error.
func (s *Service) Close(workOrderID int64) (*CloseResult, error) {
	s.locks.Lock(workOrderID)
	defer s.locks.Unlock(workOrderID)

	wo, err := s.getWorkOrder(workOrderID)
	if err != nil {
		return nil, err
	}
	if wo.Status == store.WOStatusCompleted || wo.Status == store.WOStatusCancelled {
		return nil, fault.InvalidTransition(wo.Status, store.WOStatusCompleted, "work order is already closed")
	}
	tasks, err := s.db.ListTasksByWorkOrder(workOrderID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	for _, t := range tasks {
		if t.Status != store.TaskStatusDone && t.Status != store.TaskStatusCancelled {
			return nil, fault.InvalidTransition(wo.Status, store.WOStatusCompleted,
				"every non-cancelled task must be done before closing")
		}
	}

	checks, err := s.guards.EvaluateClosure(workOrderID)
	if err != nil {
		return nil, err
	}
	res := &CloseResult{Warnings: guards.Warnings(checks)}
	if !guards.ClosureAllowed(checks) {
		res.Failures = guards.Failures(checks)
		first := res.Failures[0]
		return res, fault.GuardFailed(first.PredicateID, first.Message)
	}

	if err := s.db.CloseWorkOrder(workOrderID); err != nil {
		return nil, fault.Internal(err)
	}
	res.OK = true
	if s.emitter != nil {
		s.emitter.WorkOrderClosed(workOrderID)
	}
	log.Printf("lifecycle: work order %d closed with %d warning(s)", workOrderID, len(res.Warnings))
	return res, nil
}

// CancelWorkOrder cancels the order and every non-terminal task.
func (s *Service) CancelWorkOrder(workOrderID int64, reason string) error {
	s.locks.Lock(workOrderID)
	defer s.locks.Unlock(workOrderID)

	wo, err := s.getWorkOrder(workOrderID)
	if err != nil {
		return err
	}
	if wo.Status == store.WOStatusCompleted || wo.Status == store.WOStatusCancelled {
		return fault.InvalidTransition(wo.Status, store.WOStatusCancelled, "work order is already closed")
	}
	tasks, err := s.db.ListTasksByWorkOrder(workOrderID)
	if err != nil {
		return fault.Internal(err)
	}
	for _, t := range tasks {
		if t.Terminal() {
			continue
		}
		iv, err := s.db.GetInterventionByTask(t.ID)
		if err == nil && iv.EndedAt == nil {
			if err := s.db.CloseIntervention(iv.ID, s.now(), store.ResultCancelled, reason); err != nil {
				return fault.Internal(err)
			}
		} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fault.Internal(err)
		}
		if err := s.db.UpdateTaskStatus(t.ID, store.TaskStatusCancelled); err != nil {
			return fault.Internal(err)
		}
	}
	if err := s.db.UpdateWorkOrderStatus(workOrderID, store.WOStatusCancelled, reason); err != nil {
		return fault.Internal(err)
	}
	if s.emitter != nil {
		s.emitter.WorkOrderStatusChanged(workOrderID, store.WOStatusCancelled, reason)
	}
	return nil
}

// Durations aggregates logged intervention minutes for a work order.
func (s *Service) Durations(workOrderID int64) (total int, perTask map[int64]int, err error) {
	ivs, err := s.db.ListInterventionsByWorkOrder(workOrderID)
	if err != nil {
		return 0, nil, fault.Internal(err)
	}
	perTask = make(map[int64]int)
	for _, iv := range ivs {
		d := iv.DurationMinutes()
		perTask[iv.TaskID] += d
		total += d
	}
	return total, perTask, nil
}

// syncWorkOrder recomputes the aggregate status from the task set.
// Terminal work orders are never touched.
func (s *Service) syncWorkOrder(workOrderID int64) error {
	wo, err := s.getWorkOrder(workOrderID)
	if err != nil {
		return err
	}
	if wo.Status == store.WOStatusCompleted || wo.Status == store.WOStatusCancelled {
		return nil
	}
	counts, err := s.db.CountTasksByStatus(workOrderID)
	if err != nil {
		return fault.Internal(err)
	}
	next := wo.Status
	switch {
	case counts[store.TaskStatusInProgress] > 0:
		next = store.WOStatusInProgress
	case counts[store.TaskStatusAssigned] > 0:
		next = store.WOStatusAssigned
	case counts[store.TaskStatusPending] > 0:
		next = store.WOStatusPending
	}
	if next == wo.Status {
		return nil
	}
	if err := s.db.UpdateWorkOrderStatus(workOrderID, next, "task aggregate"); err != nil {
		return fault.Internal(err)
	}
	if s.emitter != nil {
		s.emitter.WorkOrderStatusChanged(workOrderID, next, "task aggregate")
	}
	return nil
}

func (s *Service) getTask(id int64) (*store.Task, error) {
	t, err := s.db.GetTask(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("task %d not found", id)
		}
		return nil, fault.Internal(err)
	}
	return t, nil
}

func (s *Service) getWorkOrder(id int64) (*store.WorkOrder, error) {
	wo, err := s.db.GetWorkOrder(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("work order %d not found", id)
		}
		return nil, fault.Internal(err)
	}
	return wo, nil
}
