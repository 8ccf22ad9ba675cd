package store

import (
	"fmt"
	"time"
)

// ClientToken is the single live tracking token for a work order.
// Re-minting replaces the row in place, so old links stop working.
type ClientToken struct {
	ID          int64     `json:"id"`
	WorkOrderID int64     `json:"work_order_id"`
	Token       string    `json:"token"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Revoked     bool      `json:"revoked"`
	AccessCount int64     `json:"access_count"`
}

type ClientAccess struct {
	ID          int64     `json:"id"`
	WorkOrderID int64     `json:"work_order_id"`
	AccessedAt  time.Time `json:"accessed_at"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
}

// UpsertClientToken mints or replaces the token row atomically. The
// conflict target is the unique work_order_id, so concurrent mints for
// the same work order serialize on the row.
func (db *DB) UpsertClientToken(t *ClientToken) error {
	_, err := db.Exec(db.Q(`INSERT INTO client_tokens (work_order_id, token, issued_at, expires_at, revoked, access_count) VALUES (?, ?, ?, ?, ?, 0) ON CONFLICT(work_order_id) DO UPDATE SET token=excluded.token, issued_at=excluded.issued_at, expires_at=excluded.expires_at, revoked=excluded.revoked, access_count=0`),
		t.WorkOrderID, t.Token, fmtTime(t.IssuedAt), fmtTime(t.ExpiresAt), t.Revoked)
	if err != nil {
		return fmt.Errorf("upsert client token: %w", err)
	}
	return nil
}

func (db *DB) GetClientToken(workOrderID int64) (*ClientToken, error) {
	row := db.QueryRow(db.Q(`SELECT id, work_order_id, token, issued_at, expires_at, revoked, access_count FROM client_tokens WHERE work_order_id=?`), workOrderID)
	var t ClientToken
	var issuedAt, expiresAt any
	err := row.Scan(&t.ID, &t.WorkOrderID, &t.Token, &issuedAt, &expiresAt, &t.Revoked, &t.AccessCount)
	if err != nil {
		return nil, err
	}
	t.IssuedAt = parseTime(issuedAt)
	t.ExpiresAt = parseTime(expiresAt)
	return &t, nil
}

func (db *DB) RevokeClientToken(workOrderID int64) error {
	_, err := db.Exec(db.Q(`UPDATE client_tokens SET revoked=? WHERE work_order_id=?`), true, workOrderID)
	return err
}

func (db *DB) IncrementTokenAccess(workOrderID int64) error {
	_, err := db.Exec(db.Q(`UPDATE client_tokens SET access_count=access_count+1 WHERE work_order_id=?`), workOrderID)
	return err
}

// DeleteExpiredTokens removes rows whose expiry is before the cutoff.
// Returns the number of rows swept.
func (db *DB) DeleteExpiredTokens(cutoff time.Time) (int64, error) {
	result, err := db.Exec(db.Q(`DELETE FROM client_tokens WHERE expires_at < ?`), fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (db *DB) LogClientAccess(a *ClientAccess) error {
	_, err := db.Exec(db.Q(`INSERT INTO client_access_log (work_order_id, ip_address, user_agent) VALUES (?, ?, ?)`),
		a.WorkOrderID, a.IPAddress, a.UserAgent)
	return err
}

func (db *DB) ListClientAccess(workOrderID int64, limit int) ([]*ClientAccess, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(db.Q(`SELECT id, work_order_id, accessed_at, ip_address, user_agent FROM client_access_log WHERE work_order_id=? ORDER BY id DESC LIMIT ?`), workOrderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var log []*ClientAccess
	for rows.Next() {
		var a ClientAccess
		var accessedAt any
		if err := rows.Scan(&a.ID, &a.WorkOrderID, &accessedAt, &a.IPAddress, &a.UserAgent); err != nil {
			return nil, err
		}
		a.AccessedAt = parseTime(accessedAt)
		log = append(log, &a)
	}
	return log, rows.Err()
}
