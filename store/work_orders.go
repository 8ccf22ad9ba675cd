package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Work order statuses mirror task statuses in aggregate.
const (
	WOStatusDraft      = "draft"
	WOStatusPending    = "pending"
	WOStatusAssigned   = "assigned"
	WOStatusInProgress = "in_progress"
	WOStatusCompleted  = "completed"
	WOStatusCancelled  = "cancelled"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

type WorkOrder struct {
	ID                    int64      `json:"id"`
	ClaimNumber           string     `json:"claim_number"`
	CustomerID            int64      `json:"customer_id"`
	VehicleID             *int64     `json:"vehicle_id,omitempty"`
	Description           string     `json:"description"`
	Priority              string     `json:"priority"`
	Status                string     `json:"status"`
	CreatedBy             string     `json:"created_by"`
	AssignedTechnicianID  *int64     `json:"assigned_technician_id,omitempty"`
	EstimatedDurationMins int        `json:"estimated_duration_minutes"`
	ScheduledStart        *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd          *time.Time `json:"scheduled_end,omitempty"`
	LocationLat           *float64   `json:"location_lat,omitempty"`
	LocationLng           *float64   `json:"location_lng,omitempty"`
	AutoGenerated         bool       `json:"auto_generated"`
	PredictionID          *int64     `json:"prediction_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ClosedAt              *time.Time `json:"closed_at,omitempty"`
}

type WorkOrderHistory struct {
	ID          int64     `json:"id"`
	WorkOrderID int64     `json:"work_order_id"`
	Status      string    `json:"status"`
	Detail      string    `json:"detail"`
	CreatedAt   time.Time `json:"created_at"`
}

// WorkOrderFilter narrows ListWorkOrders. Zero values mean "any".
type WorkOrderFilter struct {
	Status     string
	Priority   string
	CustomerID int64
	VehicleID  int64
	AutoOnly   bool
	Limit      int
}

const workOrderSelectCols = `id, claim_number, customer_id, vehicle_id, description, priority, status, created_by, assigned_technician_id, estimated_duration_minutes, scheduled_start, scheduled_end, location_lat, location_lng, auto_generated, prediction_id, created_at, updated_at, closed_at`

func scanWorkOrder(row interface{ Scan(...any) error }) (*WorkOrder, error) {
	var wo WorkOrder
	var vehicleID, techID, predictionID sql.NullInt64
	var lat, lng sql.NullFloat64
	var schedStart, schedEnd, createdAt, updatedAt, closedAt any

	err := row.Scan(&wo.ID, &wo.ClaimNumber, &wo.CustomerID, &vehicleID, &wo.Description,
		&wo.Priority, &wo.Status, &wo.CreatedBy, &techID, &wo.EstimatedDurationMins,
		&schedStart, &schedEnd, &lat, &lng, &wo.AutoGenerated, &predictionID,
		&createdAt, &updatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	if vehicleID.Valid {
		wo.VehicleID = &vehicleID.Int64
	}
	if techID.Valid {
		wo.AssignedTechnicianID = &techID.Int64
	}
	if predictionID.Valid {
		wo.PredictionID = &predictionID.Int64
	}
	if lat.Valid {
		wo.LocationLat = &lat.Float64
	}
	if lng.Valid {
		wo.LocationLng = &lng.Float64
	}
	wo.ScheduledStart = parseTimePtr(schedStart)
	wo.ScheduledEnd = parseTimePtr(schedEnd)
	wo.CreatedAt = parseTime(createdAt)
	wo.UpdatedAt = parseTime(updatedAt)
	wo.ClosedAt = parseTimePtr(closedAt)
	return &wo, nil
}

func scanWorkOrders(rows *sql.Rows) ([]*WorkOrder, error) {
	var orders []*WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, wo)
	}
	return orders, rows.Err()
}

func (db *DB) CreateWorkOrder(wo *WorkOrder) error {
	var vehicleID, techID, predictionID, lat, lng any
	if wo.VehicleID != nil {
		vehicleID = *wo.VehicleID
	}
	if wo.AssignedTechnicianID != nil {
		techID = *wo.AssignedTechnicianID
	}
	if wo.PredictionID != nil {
		predictionID = *wo.PredictionID
	}
	if wo.LocationLat != nil {
		lat = *wo.LocationLat
	}
	if wo.LocationLng != nil {
		lng = *wo.LocationLng
	}
	result, err := db.Exec(db.Q(`INSERT INTO work_orders (claim_number, customer_id, vehicle_id, description, priority, status, created_by, assigned_technician_id, estimated_duration_minutes, scheduled_start, scheduled_end, location_lat, location_lng, auto_generated, prediction_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		wo.ClaimNumber, wo.CustomerID, vehicleID, wo.Description, wo.Priority, wo.Status,
		wo.CreatedBy, techID, wo.EstimatedDurationMins,
		fmtTimePtr(wo.ScheduledStart), fmtTimePtr(wo.ScheduledEnd),
		lat, lng, wo.AutoGenerated, predictionID)
	if err != nil {
		return fmt.Errorf("create work order: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create work order last id: %w", err)
	}
	wo.ID = id
	return nil
}

// UpdateWorkOrderStatus sets the status and appends a history row.
func (db *DB) UpdateWorkOrderStatus(id int64, status, detail string) error {
	_, err := db.Exec(db.Q(`UPDATE work_orders SET status=?, updated_at=datetime('now','localtime') WHERE id=?`),
		status, id)
	if err != nil {
		return err
	}
	_, err = db.Exec(db.Q(`INSERT INTO work_order_history (work_order_id, status, detail) VALUES (?, ?, ?)`),
		id, status, detail)
	return err
}

func (db *DB) CloseWorkOrder(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE work_orders SET status='completed', closed_at=datetime('now','localtime'), updated_at=datetime('now','localtime') WHERE id=?`), id)
	if err != nil {
		return err
	}
	_, err = db.Exec(db.Q(`INSERT INTO work_order_history (work_order_id, status, detail) VALUES (?, 'completed', 'work order closed')`), id)
	return err
}

func (db *DB) UpdateWorkOrderSchedule(id int64, techID *int64, start, end *time.Time) error {
	var tid any
	if techID != nil {
		tid = *techID
	}
	_, err := db.Exec(db.Q(`UPDATE work_orders SET assigned_technician_id=?, scheduled_start=?, scheduled_end=?, updated_at=datetime('now','localtime') WHERE id=?`),
		tid, fmtTimePtr(start), fmtTimePtr(end), id)
	return err
}

func (db *DB) UpdateWorkOrderEstimate(id int64, minutes int) error {
	_, err := db.Exec(db.Q(`UPDATE work_orders SET estimated_duration_minutes=?, updated_at=datetime('now','localtime') WHERE id=?`),
		minutes, id)
	return err
}

func (db *DB) GetWorkOrder(id int64) (*WorkOrder, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM work_orders WHERE id=?`, workOrderSelectCols)), id)
	return scanWorkOrder(row)
}

func (db *DB) GetWorkOrderByPrediction(predictionID int64) (*WorkOrder, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM work_orders WHERE prediction_id=? LIMIT 1`, workOrderSelectCols)), predictionID)
	return scanWorkOrder(row)
}

func (db *DB) ListWorkOrders(f WorkOrderFilter) ([]*WorkOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM work_orders WHERE 1=1`, workOrderSelectCols)
	var args []any
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		query += ` AND priority=?`
		args = append(args, f.Priority)
	}
	if f.CustomerID != 0 {
		query += ` AND customer_id=?`
		args = append(args, f.CustomerID)
	}
	if f.VehicleID != 0 {
		query += ` AND vehicle_id=?`
		args = append(args, f.VehicleID)
	}
	if f.AutoOnly {
		query += ` AND auto_generated`
	}
	query += ` ORDER BY id DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkOrders(rows)
}

func (db *DB) ListWorkOrderHistory(workOrderID int64) ([]*WorkOrderHistory, error) {
	rows, err := db.Query(db.Q(`SELECT id, work_order_id, status, detail, created_at FROM work_order_history WHERE work_order_id=? ORDER BY id`), workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []*WorkOrderHistory
	for rows.Next() {
		var h WorkOrderHistory
		var createdAt any
		if err := rows.Scan(&h.ID, &h.WorkOrderID, &h.Status, &h.Detail, &createdAt); err != nil {
			return nil, err
		}
		h.CreatedAt = parseTime(createdAt)
		history = append(history, &h)
	}
	return history, rows.Err()
}
