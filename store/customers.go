package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Customer struct {
	ID           int64     `json:"id"`
	DisplayName  string    `json:"display_name"`
	CompanyName  string    `json:"company_name"`
	PrimaryEmail string    `json:"primary_email"`
	Phone        string    `json:"phone"`
	MobilePhone  string    `json:"mobile_phone"`
	Address      string    `json:"address"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	Deleted      bool      `json:"deleted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const customerSelectCols = `id, display_name, company_name, primary_email, phone, mobile_phone, address, latitude, longitude, deleted, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (*Customer, error) {
	var c Customer
	var lat, lng sql.NullFloat64
	var createdAt, updatedAt any

	err := row.Scan(&c.ID, &c.DisplayName, &c.CompanyName, &c.PrimaryEmail, &c.Phone,
		&c.MobilePhone, &c.Address, &lat, &lng, &c.Deleted, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if lat.Valid {
		c.Latitude = &lat.Float64
	}
	if lng.Valid {
		c.Longitude = &lng.Float64
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func (db *DB) CreateCustomer(c *Customer) error {
	var lat, lng any
	if c.Latitude != nil {
		lat = *c.Latitude
	}
	if c.Longitude != nil {
		lng = *c.Longitude
	}
	result, err := db.Exec(db.Q(`INSERT INTO customers (display_name, company_name, primary_email, phone, mobile_phone, address, latitude, longitude) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		c.DisplayName, c.CompanyName, c.PrimaryEmail, c.Phone, c.MobilePhone, c.Address, lat, lng)
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create customer last id: %w", err)
	}
	c.ID = id
	return nil
}

func (db *DB) GetCustomer(id int64) (*Customer, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM customers WHERE id=? AND NOT deleted`, customerSelectCols)), id)
	return scanCustomer(row)
}

func (db *DB) UpdateCustomer(c *Customer) error {
	var lat, lng any
	if c.Latitude != nil {
		lat = *c.Latitude
	}
	if c.Longitude != nil {
		lng = *c.Longitude
	}
	_, err := db.Exec(db.Q(`UPDATE customers SET display_name=?, company_name=?, primary_email=?, phone=?, mobile_phone=?, address=?, latitude=?, longitude=?, updated_at=datetime('now','localtime') WHERE id=?`),
		c.DisplayName, c.CompanyName, c.PrimaryEmail, c.Phone, c.MobilePhone, c.Address, lat, lng, c.ID)
	return err
}

func (db *DB) SoftDeleteCustomer(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE customers SET deleted=?, updated_at=datetime('now','localtime') WHERE id=?`), true, id)
	return err
}

func (db *DB) ListCustomers(limit int) ([]*Customer, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM customers WHERE NOT deleted ORDER BY display_name LIMIT ?`, customerSelectCols)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var customers []*Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}
