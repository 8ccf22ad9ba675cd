package store

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	ResultOK        = "ok"
	ResultRework    = "rework"
	ResultCancelled = "cancelled"
)

// Intervention is the execution record of exactly one task.
type Intervention struct {
	ID           int64      `json:"id"`
	TaskID       int64      `json:"task_id"`
	WorkOrderID  int64      `json:"work_order_id"`
	TechnicianID int64      `json:"technician_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	ResultStatus string     `json:"result_status"`
	Summary      string     `json:"summary"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DurationMinutes is computed, never stored.
func (iv *Intervention) DurationMinutes() int {
	if iv.EndedAt == nil {
		return 0
	}
	return int(iv.EndedAt.Sub(iv.StartedAt).Minutes())
}

type InterventionNote struct {
	ID             int64     `json:"id"`
	InterventionID int64     `json:"intervention_id"`
	Author         string    `json:"author"`
	Body           string    `json:"body"`
	Visibility     string    `json:"visibility"`
	CreatedAt      time.Time `json:"created_at"`
}

type InterventionMedia struct {
	ID             int64     `json:"id"`
	InterventionID int64     `json:"intervention_id"`
	Filename       string    `json:"filename"`
	Kind           string    `json:"kind"`
	IsBeforeWork   bool      `json:"is_before_work"`
	IsAfterWork    bool      `json:"is_after_work"`
	CreatedAt      time.Time `json:"created_at"`
}

const interventionSelectCols = `id, task_id, work_order_id, technician_id, started_at, ended_at, result_status, summary, created_at`

func scanIntervention(row interface{ Scan(...any) error }) (*Intervention, error) {
	var iv Intervention
	var startedAt, endedAt, createdAt any

	err := row.Scan(&iv.ID, &iv.TaskID, &iv.WorkOrderID, &iv.TechnicianID,
		&startedAt, &endedAt, &iv.ResultStatus, &iv.Summary, &createdAt)
	if err != nil {
		return nil, err
	}
	iv.StartedAt = parseTime(startedAt)
	iv.EndedAt = parseTimePtr(endedAt)
	iv.CreatedAt = parseTime(createdAt)
	return &iv, nil
}

func (db *DB) CreateIntervention(iv *Intervention) error {
	result, err := db.Exec(db.Q(`INSERT INTO interventions (task_id, work_order_id, technician_id, started_at) VALUES (?, ?, ?, ?)`),
		iv.TaskID, iv.WorkOrderID, iv.TechnicianID, fmtTime(iv.StartedAt))
	if err != nil {
		return fmt.Errorf("create intervention: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create intervention last id: %w", err)
	}
	iv.ID = id
	return nil
}

// CloseIntervention freezes the timing fields. Notes and media may still
// be appended afterwards.
func (db *DB) CloseIntervention(id int64, endedAt time.Time, resultStatus, summary string) error {
	_, err := db.Exec(db.Q(`UPDATE interventions SET ended_at=?, result_status=?, summary=? WHERE id=? AND ended_at IS NULL`),
		fmtTime(endedAt), resultStatus, summary, id)
	return err
}

func (db *DB) GetIntervention(id int64) (*Intervention, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM interventions WHERE id=?`, interventionSelectCols)), id)
	return scanIntervention(row)
}

func (db *DB) GetInterventionByTask(taskID int64) (*Intervention, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM interventions WHERE task_id=?`, interventionSelectCols)), taskID)
	return scanIntervention(row)
}

func (db *DB) ListInterventionsByWorkOrder(workOrderID int64) ([]*Intervention, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM interventions WHERE work_order_id=? ORDER BY id`, interventionSelectCols)), workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ivs []*Intervention
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		ivs = append(ivs, iv)
	}
	return ivs, rows.Err()
}

func (db *DB) AddInterventionNote(n *InterventionNote) error {
	if n.Visibility == "" {
		n.Visibility = "internal"
	}
	result, err := db.Exec(db.Q(`INSERT INTO intervention_notes (intervention_id, author, body, visibility) VALUES (?, ?, ?, ?)`),
		n.InterventionID, n.Author, n.Body, n.Visibility)
	if err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("add note last id: %w", err)
	}
	n.ID = id
	return nil
}

func (db *DB) ListNotesByIntervention(interventionID int64) ([]*InterventionNote, error) {
	rows, err := db.Query(db.Q(`SELECT id, intervention_id, author, body, visibility, created_at FROM intervention_notes WHERE intervention_id=? ORDER BY id`), interventionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotes(rows)
}

// ListNotesByWorkOrder joins through interventions for the closure guards
// and the customer progress view.
func (db *DB) ListNotesByWorkOrder(workOrderID int64) ([]*InterventionNote, error) {
	rows, err := db.Query(db.Q(`SELECT n.id, n.intervention_id, n.author, n.body, n.visibility, n.created_at FROM intervention_notes n JOIN interventions iv ON iv.id=n.intervention_id WHERE iv.work_order_id=? ORDER BY n.id`), workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotes(rows)
}

func scanNotes(rows *sql.Rows) ([]*InterventionNote, error) {
	var notes []*InterventionNote
	for rows.Next() {
		var n InterventionNote
		var createdAt any
		if err := rows.Scan(&n.ID, &n.InterventionID, &n.Author, &n.Body, &n.Visibility, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt = parseTime(createdAt)
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}

func (db *DB) AddInterventionMedia(m *InterventionMedia) error {
	if m.Kind == "" {
		m.Kind = "image"
	}
	result, err := db.Exec(db.Q(`INSERT INTO intervention_media (intervention_id, filename, kind, is_before_work, is_after_work) VALUES (?, ?, ?, ?, ?)`),
		m.InterventionID, m.Filename, m.Kind, m.IsBeforeWork, m.IsAfterWork)
	if err != nil {
		return fmt.Errorf("add media: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("add media last id: %w", err)
	}
	m.ID = id
	return nil
}

func (db *DB) ListMediaByWorkOrder(workOrderID int64) ([]*InterventionMedia, error) {
	rows, err := db.Query(db.Q(`SELECT m.id, m.intervention_id, m.filename, m.kind, m.is_before_work, m.is_after_work, m.created_at FROM intervention_media m JOIN interventions iv ON iv.id=m.intervention_id WHERE iv.work_order_id=? ORDER BY m.id`), workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var media []*InterventionMedia
	for rows.Next() {
		var m InterventionMedia
		var createdAt any
		if err := rows.Scan(&m.ID, &m.InterventionID, &m.Filename, &m.Kind, &m.IsBeforeWork, &m.IsAfterWork, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		media = append(media, &m)
	}
	return media, rows.Err()
}
