package store

import (
	"fmt"
	"time"
)

// WorkOrderPart is a consumed-part line item, referenced by the closure
// guards when no "no parts used" note is present.
type WorkOrderPart struct {
	ID          int64     `json:"id"`
	WorkOrderID int64     `json:"work_order_id"`
	Name        string    `json:"name"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	CreatedAt   time.Time `json:"created_at"`
}

func (db *DB) AddWorkOrderPart(p *WorkOrderPart) error {
	if p.Quantity == 0 {
		p.Quantity = 1
	}
	result, err := db.Exec(db.Q(`INSERT INTO work_order_parts (work_order_id, name, quantity, unit_price) VALUES (?, ?, ?, ?)`),
		p.WorkOrderID, p.Name, p.Quantity, p.UnitPrice)
	if err != nil {
		return fmt.Errorf("add part: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("add part last id: %w", err)
	}
	p.ID = id
	return nil
}

func (db *DB) ListPartsByWorkOrder(workOrderID int64) ([]*WorkOrderPart, error) {
	rows, err := db.Query(db.Q(`SELECT id, work_order_id, name, quantity, unit_price, created_at FROM work_order_parts WHERE work_order_id=? ORDER BY id`), workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var parts []*WorkOrderPart
	for rows.Next() {
		var p WorkOrderPart
		var createdAt any
		if err := rows.Scan(&p.ID, &p.WorkOrderID, &p.Name, &p.Quantity, &p.UnitPrice, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(createdAt)
		parts = append(parts, &p)
	}
	return parts, rows.Err()
}

func (db *DB) DeleteWorkOrderPart(id int64) error {
	_, err := db.Exec(db.Q(`DELETE FROM work_order_parts WHERE id=?`), id)
	return err
}
