// Package vehiclestate keeps the latest telemetry and health flags per
// vehicle in redis, write-through after ingest, with SQL as the source
// of truth and the fallback read path.
package vehiclestate

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"fieldcore/store"
	"fieldcore/telemetry"
)

// State is the cached per-vehicle snapshot plus derived health.
type State struct {
	VehicleID int64                    `json:"vehicle_id"`
	Snapshot  *store.TelemetrySnapshot `json:"snapshot"`
	Critical  bool                     `json:"critical"`
	Reasons   []string                 `json:"reasons,omitempty"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// Manager reads from redis and falls back to SQL. A nil redis store
// degrades every path to SQL-only.
type Manager struct {
	db    *store.DB
	redis *RedisStore
}

func NewManager(db *store.DB, redis *RedisStore) *Manager {
	return &Manager{db: db, redis: redis}
}

func stateFrom(snap *store.TelemetrySnapshot) *State {
	reasons := telemetry.CriticalReasons(snap)
	return &State{
		VehicleID: snap.VehicleID,
		Snapshot:  snap,
		Critical:  len(reasons) > 0,
		Reasons:   reasons,
		UpdatedAt: time.Now(),
	}
}

// Refresh writes the snapshot through to redis. Called after every
// ingest; failures only log, SQL already holds the row.
func (m *Manager) Refresh(snap *store.TelemetrySnapshot) {
	if m.redis == nil {
		return
	}
	if err := m.redis.SetState(context.Background(), stateFrom(snap)); err != nil {
		log.Printf("vehiclestate: redis refresh for vehicle %d: %v", snap.VehicleID, err)
	}
}

// Latest returns the cached state, falling back to SQL when redis
// misses or is down.
func (m *Manager) Latest(vehicleID int64) (*State, error) {
	if m.redis != nil {
		st, err := m.redis.GetState(context.Background(), vehicleID)
		if err == nil && st != nil {
			return st, nil
		}
		if err != nil {
			log.Printf("vehiclestate: redis read for vehicle %d, falling back to sql: %v", vehicleID, err)
		}
	}
	return m.latestFromSQL(vehicleID)
}

func (m *Manager) latestFromSQL(vehicleID int64) (*State, error) {
	snap, err := m.db.LatestSnapshot(vehicleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st := stateFrom(snap)
	if m.redis != nil {
		if err := m.redis.SetState(context.Background(), st); err != nil {
			log.Printf("vehiclestate: redis backfill for vehicle %d: %v", vehicleID, err)
		}
	}
	return st, nil
}

// All returns the cached state for every known vehicle.
func (m *Manager) All() ([]*State, error) {
	vehicles, err := m.db.ListVehicles(0)
	if err != nil {
		return nil, err
	}
	var states []*State
	for _, v := range vehicles {
		st, err := m.Latest(v.ID)
		if err != nil {
			return nil, err
		}
		if st != nil {
			states = append(states, st)
		}
	}
	return states, nil
}

// SyncFromSQL rebuilds the redis cache at startup.
func (m *Manager) SyncFromSQL(ctx context.Context) error {
	if m.redis == nil {
		return nil
	}
	vehicles, err := m.db.ListVehicles(0)
	if err != nil {
		return err
	}
	synced := 0
	for _, v := range vehicles {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap, err := m.db.LatestSnapshot(v.ID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		if err := m.redis.SetState(ctx, stateFrom(snap)); err != nil {
			log.Printf("vehiclestate: sync vehicle %d: %v", v.ID, err)
			continue
		}
		synced++
	}
	log.Printf("vehiclestate: synced %d vehicle state(s) from sql", synced)
	return nil
}
