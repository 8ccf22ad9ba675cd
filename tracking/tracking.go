// Package tracking mints and verifies the signed tokens behind
// customer-facing progress links. Verification fails closed with one
// opaque outcome; the reason is never leaked.
package tracking

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"fieldcore/fault"
	"fieldcore/store"
)

type Service struct {
	db      *store.DB
	secret  []byte
	ttlDays int
	now     func() time.Time
}

// NewService keeps the minting secret for the process lifetime.
// Rotation requires a restart and invalidates existing tokens.
func NewService(db *store.DB, secret string, ttlDays int) *Service {
	if ttlDays <= 0 {
		ttlDays = 7
	}
	return &Service{db: db, secret: []byte(secret), ttlDays: ttlDays, now: time.Now}
}

// MintResult is returned to the operator who requested the link.
type MintResult struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Mint issues a fresh token for a work order, replacing any prior one.
func (s *Service) Mint(workOrderID int64) (*MintResult, error) {
	if _, err := s.db.GetWorkOrder(workOrderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("work order %d not found", workOrderID)
		}
		return nil, fault.Internal(err)
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fault.Internal(err)
	}
	issued := s.now()
	payload := fmt.Sprintf("%d|%d|%s", workOrderID, issued.Unix(), hex.EncodeToString(raw))
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	sig := hex.EncodeToString(mac.Sum(nil))
	token := base64.RawURLEncoding.EncodeToString(
		[]byte(fmt.Sprintf("%d|%d|%s", workOrderID, issued.Unix(), sig)))

	expires := issued.AddDate(0, 0, s.ttlDays)
	err := s.db.UpsertClientToken(&store.ClientToken{
		WorkOrderID: workOrderID,
		Token:       token,
		IssuedAt:    issued,
		ExpiresAt:   expires,
	})
	if err != nil {
		return nil, fault.Internal(err)
	}
	return &MintResult{
		URL:       fmt.Sprintf("/track?wo=%d&token=%s", workOrderID, token),
		Token:     token,
		ExpiresAt: expires,
	}, nil
}

// Verify checks a presented token. All rejection paths produce the
// same false result.
func (s *Service) Verify(workOrderID int64, token, ipAddress, userAgent string) bool {
	decoded, ok := decodeToken(token)
	if !ok {
		return false
	}
	parts := strings.SplitN(decoded, "|", 3)
	if len(parts) != 3 {
		return false
	}
	claimedWO, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || claimedWO != workOrderID {
		return false
	}

	row, err := s.db.GetClientToken(workOrderID)
	if err != nil {
		return false
	}
	if row.Revoked || !s.now().Before(row.ExpiresAt) {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(row.Token), []byte(token)) != 1 {
		return false
	}

	if err := s.db.IncrementTokenAccess(workOrderID); err != nil {
		log.Printf("tracking: increment access for work order %d: %v", workOrderID, err)
	}
	if err := s.db.LogClientAccess(&store.ClientAccess{
		WorkOrderID: workOrderID,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
	}); err != nil {
		log.Printf("tracking: log access for work order %d: %v", workOrderID, err)
	}
	return true
}

// decodeToken handles URL-safe base64 with or without padding.
func decodeToken(token string) (string, bool) {
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "=")); err == nil {
		return string(b), true
	}
	if pad := len(token) % 4; pad != 0 {
		token += strings.Repeat("=", 4-pad)
	}
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (s *Service) Revoke(workOrderID int64) error {
	if err := s.db.RevokeClientToken(workOrderID); err != nil {
		return fault.Internal(err)
	}
	return nil
}

// SweepExpired deletes expired token rows and returns the count.
func (s *Service) SweepExpired() (int64, error) {
	n, err := s.db.DeleteExpiredTokens(s.now())
	if err != nil {
		return 0, fault.Internal(err)
	}
	if n > 0 {
		log.Printf("tracking: swept %d expired token(s)", n)
	}
	return n, nil
}

// progressPercent is a pure function of the work order status.
func progressPercent(status string) int {
	switch status {
	case store.WOStatusDraft:
		return 5
	case store.WOStatusPending:
		return 10
	case store.WOStatusAssigned:
		return 20
	case store.WOStatusInProgress:
		return 60
	case store.WOStatusCompleted:
		return 100
	default:
		return 0
	}
}

type ProgressTask struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

// ProgressView is the customer-facing snapshot of a work order.
type ProgressView struct {
	Status               string         `json:"status"`
	ProgressPercent      int            `json:"progress_percent"`
	ETA                  *time.Time     `json:"eta,omitempty"`
	TechnicianName       string         `json:"technician_display_name,omitempty"`
	CustomerVisibleNotes []string       `json:"customer_visible_notes"`
	Tasks                []ProgressTask `json:"tasks"`
}

// VerifyAndProgress gates the progress view behind token verification.
func (s *Service) VerifyAndProgress(workOrderID int64, token, ipAddress, userAgent string) (*ProgressView, error) {
	if !s.Verify(workOrderID, token, ipAddress, userAgent) {
		return nil, fault.Unauthorized()
	}
	wo, err := s.db.GetWorkOrder(workOrderID)
	if err != nil {
		return nil, fault.Unauthorized()
	}

	view := &ProgressView{
		Status:               wo.Status,
		ProgressPercent:      progressPercent(wo.Status),
		CustomerVisibleNotes: []string{},
		Tasks:                []ProgressTask{},
	}
	switch {
	case wo.ScheduledEnd != nil:
		view.ETA = wo.ScheduledEnd
	case wo.ScheduledStart != nil && wo.EstimatedDurationMins > 0:
		eta := wo.ScheduledStart.Add(time.Duration(wo.EstimatedDurationMins) * time.Minute)
		view.ETA = &eta
	}
	if wo.AssignedTechnicianID != nil {
		if tech, err := s.db.GetTechnician(*wo.AssignedTechnicianID); err == nil {
			view.TechnicianName = tech.DisplayName
		}
	}
	tasks, err := s.db.ListTasksByWorkOrder(workOrderID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	for _, t := range tasks {
		view.Tasks = append(view.Tasks, ProgressTask{Title: t.Title, Status: t.Status})
	}
	notes, err := s.db.ListNotesByWorkOrder(workOrderID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	for _, n := range notes {
		if n.Visibility == "customer" {
			view.CustomerVisibleNotes = append(view.CustomerVisibleNotes, n.Body)
		}
	}
	return view, nil
}
