package store

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	TaskStatusPending    = "pending"
	TaskStatusAssigned   = "assigned"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
	TaskStatusCancelled  = "cancelled"
)

const (
	TaskSourceRequested  = "requested"
	TaskSourceSuggested  = "suggested"
	TaskSourcePreventive = "preventive"
)

type Task struct {
	ID                   int64      `json:"id"`
	WorkOrderID          int64      `json:"work_order_id"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	TaskSource           string     `json:"task_source"`
	CreatedByActor       string     `json:"created_by_actor"`
	Status               string     `json:"status"`
	Priority             string     `json:"priority"`
	AssignedTechnicianID *int64     `json:"assigned_technician_id,omitempty"`
	EstimatedMinutes     int        `json:"estimated_minutes"`
	RequiredSkills       []string   `json:"required_skills"`
	ScheduledStart       *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd         *time.Time `json:"scheduled_end,omitempty"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Terminal reports whether the task can no longer transition.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusDone || t.Status == TaskStatusCancelled
}

const taskSelectCols = `id, work_order_id, title, description, task_source, created_by_actor, status, priority, assigned_technician_id, estimated_minutes, required_skills, scheduled_start, scheduled_end, started_at, completed_at, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var t Task
	var techID sql.NullInt64
	var skills string
	var schedStart, schedEnd, startedAt, completedAt, createdAt, updatedAt any

	err := row.Scan(&t.ID, &t.WorkOrderID, &t.Title, &t.Description, &t.TaskSource,
		&t.CreatedByActor, &t.Status, &t.Priority, &techID, &t.EstimatedMinutes,
		&skills, &schedStart, &schedEnd, &startedAt, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if techID.Valid {
		t.AssignedTechnicianID = &techID.Int64
	}
	t.RequiredSkills = decodeStrings(skills)
	t.ScheduledStart = parseTimePtr(schedStart)
	t.ScheduledEnd = parseTimePtr(schedEnd)
	t.StartedAt = parseTimePtr(startedAt)
	t.CompletedAt = parseTimePtr(completedAt)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) CreateTask(t *Task) error {
	var techID any
	if t.AssignedTechnicianID != nil {
		techID = *t.AssignedTechnicianID
	}
	if t.TaskSource == "" {
		t.TaskSource = TaskSourceRequested
	}
	if t.Status == "" {
		t.Status = TaskStatusPending
	}
	result, err := db.Exec(db.Q(`INSERT INTO tasks (work_order_id, title, description, task_source, created_by_actor, status, priority, assigned_technician_id, estimated_minutes, required_skills, scheduled_start, scheduled_end) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.WorkOrderID, t.Title, t.Description, t.TaskSource, t.CreatedByActor,
		t.Status, t.Priority, techID, t.EstimatedMinutes, encodeStrings(t.RequiredSkills),
		fmtTimePtr(t.ScheduledStart), fmtTimePtr(t.ScheduledEnd))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create task last id: %w", err)
	}
	t.ID = id
	return nil
}

func (db *DB) GetTask(id int64) (*Task, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM tasks WHERE id=?`, taskSelectCols)), id)
	return scanTask(row)
}

func (db *DB) UpdateTaskStatus(id int64, status string) error {
	_, err := db.Exec(db.Q(`UPDATE tasks SET status=?, updated_at=datetime('now','localtime') WHERE id=?`),
		status, id)
	return err
}

func (db *DB) UpdateTaskAssignment(id int64, techID *int64, status string) error {
	var tid any
	if techID != nil {
		tid = *techID
	}
	_, err := db.Exec(db.Q(`UPDATE tasks SET assigned_technician_id=?, status=?, updated_at=datetime('now','localtime') WHERE id=?`),
		tid, status, id)
	return err
}

func (db *DB) UpdateTaskSchedule(id int64, start, end *time.Time) error {
	_, err := db.Exec(db.Q(`UPDATE tasks SET scheduled_start=?, scheduled_end=?, updated_at=datetime('now','localtime') WHERE id=?`),
		fmtTimePtr(start), fmtTimePtr(end), id)
	return err
}

func (db *DB) MarkTaskStarted(id int64, at time.Time) error {
	_, err := db.Exec(db.Q(`UPDATE tasks SET status=?, started_at=?, updated_at=datetime('now','localtime') WHERE id=?`),
		TaskStatusInProgress, fmtTime(at), id)
	return err
}

func (db *DB) MarkTaskCompleted(id int64, at time.Time) error {
	_, err := db.Exec(db.Q(`UPDATE tasks SET status=?, completed_at=?, updated_at=datetime('now','localtime') WHERE id=?`),
		TaskStatusDone, fmtTime(at), id)
	return err
}

func (db *DB) ListTasksByWorkOrder(workOrderID int64) ([]*Task, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM tasks WHERE work_order_id=? ORDER BY id`, taskSelectCols)), workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (db *DB) ListTasksByStatus(status string, limit int) ([]*Task, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM tasks WHERE status=? ORDER BY id LIMIT ?`, taskSelectCols)), status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListSchedulableTasks returns pending and assigned tasks, priority first
// then FIFO, for the optimizer.
func (db *DB) ListSchedulableTasks() ([]*Task, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM tasks WHERE status IN ('pending','assigned') ORDER BY CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, id`, taskSelectCols)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (db *DB) ListTasksByTechnician(techID int64, status string) ([]*Task, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM tasks WHERE assigned_technician_id=? AND status=? ORDER BY scheduled_start`, taskSelectCols)), techID, status)
	} else {
		rows, err = db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM tasks WHERE assigned_technician_id=? ORDER BY scheduled_start`, taskSelectCols)), techID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// CountTasksByStatus returns per-status counts for one work order.
func (db *DB) CountTasksByStatus(workOrderID int64) (map[string]int, error) {
	rows, err := db.Query(db.Q(`SELECT status, COUNT(*) FROM tasks WHERE work_order_id=? GROUP BY status`), workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
