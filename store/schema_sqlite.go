package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS customers (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    display_name  TEXT NOT NULL,
    company_name  TEXT NOT NULL DEFAULT '',
    primary_email TEXT NOT NULL DEFAULT '',
    phone         TEXT NOT NULL DEFAULT '',
    mobile_phone  TEXT NOT NULL DEFAULT '',
    address       TEXT NOT NULL DEFAULT '',
    latitude      REAL,
    longitude     REAL,
    deleted       INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS vehicles (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    customer_id    INTEGER NOT NULL REFERENCES customers(id),
    make           TEXT NOT NULL DEFAULT '',
    model          TEXT NOT NULL DEFAULT '',
    year           INTEGER NOT NULL DEFAULT 0,
    vin            TEXT NOT NULL DEFAULT '',
    license_plate  TEXT NOT NULL DEFAULT '',
    odometer       INTEGER NOT NULL DEFAULT 0,
    fuel_type      TEXT NOT NULL DEFAULT '',
    last_snapshot_id INTEGER,
    created_at     TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_vehicles_customer ON vehicles(customer_id);

CREATE TABLE IF NOT EXISTS telemetry_snapshots (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    vehicle_id         INTEGER NOT NULL REFERENCES vehicles(id),
    recorded_at        TEXT NOT NULL,
    odometer_reading   INTEGER NOT NULL DEFAULT 0,
    engine_hours       REAL NOT NULL DEFAULT 0,
    usage_intensity    REAL NOT NULL DEFAULT 0,
    avg_temperature    REAL NOT NULL DEFAULT 0,
    vibration_level    REAL NOT NULL DEFAULT 0,
    oil_pressure       REAL NOT NULL DEFAULT 0,
    brake_wear_pct     REAL NOT NULL DEFAULT 0,
    tire_wear_pct      REAL NOT NULL DEFAULT 0,
    harsh_braking      INTEGER NOT NULL DEFAULT 0,
    harsh_acceleration INTEGER NOT NULL DEFAULT 0,
    overspeed_minutes  INTEGER NOT NULL DEFAULT 0,
    gps_lat            REAL,
    gps_lng            REAL,
    source             TEXT NOT NULL DEFAULT 'iot_live',
    data_quality_score REAL NOT NULL DEFAULT 1.0,
    created_at         TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_telemetry_vehicle_time ON telemetry_snapshots(vehicle_id, recorded_at DESC);

CREATE TABLE IF NOT EXISTS technicians (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    display_name      TEXT NOT NULL,
    role              TEXT NOT NULL DEFAULT 'technician',
    skills            TEXT NOT NULL DEFAULT '[]',
    home_lat          REAL,
    home_lng          REAL,
    avail_start       TEXT NOT NULL DEFAULT '08:00',
    avail_end         TEXT NOT NULL DEFAULT '17:00',
    hourly_rate       REAL NOT NULL DEFAULT 0,
    efficiency_factor REAL NOT NULL DEFAULT 1.0,
    active            INTEGER NOT NULL DEFAULT 1,
    created_at        TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at        TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS work_orders (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    claim_number      TEXT NOT NULL UNIQUE,
    customer_id       INTEGER NOT NULL REFERENCES customers(id),
    vehicle_id        INTEGER REFERENCES vehicles(id),
    description       TEXT NOT NULL DEFAULT '',
    priority          TEXT NOT NULL DEFAULT 'medium',
    status            TEXT NOT NULL DEFAULT 'draft',
    created_by        TEXT NOT NULL DEFAULT '',
    assigned_technician_id INTEGER REFERENCES technicians(id),
    estimated_duration_minutes INTEGER NOT NULL DEFAULT 0,
    scheduled_start   TEXT,
    scheduled_end     TEXT,
    location_lat      REAL,
    location_lng      REAL,
    auto_generated    INTEGER NOT NULL DEFAULT 0,
    prediction_id     INTEGER,
    created_at        TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at        TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    closed_at         TEXT
);
CREATE INDEX IF NOT EXISTS idx_work_orders_status_start ON work_orders(status, scheduled_start);
CREATE INDEX IF NOT EXISTS idx_work_orders_customer ON work_orders(customer_id);

CREATE TABLE IF NOT EXISTS work_order_history (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    work_order_id INTEGER NOT NULL REFERENCES work_orders(id),
    status        TEXT NOT NULL,
    detail        TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_wo_history_wo ON work_order_history(work_order_id);

CREATE TABLE IF NOT EXISTS work_order_parts (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    work_order_id INTEGER NOT NULL REFERENCES work_orders(id),
    name          TEXT NOT NULL,
    quantity      REAL NOT NULL DEFAULT 1,
    unit_price    REAL NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_wo_parts_wo ON work_order_parts(work_order_id);

CREATE TABLE IF NOT EXISTS tasks (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    work_order_id     INTEGER NOT NULL REFERENCES work_orders(id),
    title             TEXT NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    task_source       TEXT NOT NULL DEFAULT 'requested',
    created_by_actor  TEXT NOT NULL DEFAULT 'operator',
    status            TEXT NOT NULL DEFAULT 'pending',
    priority          TEXT NOT NULL DEFAULT 'medium',
    assigned_technician_id INTEGER REFERENCES technicians(id),
    estimated_minutes INTEGER NOT NULL DEFAULT 30,
    required_skills   TEXT NOT NULL DEFAULT '[]',
    scheduled_start   TEXT,
    scheduled_end     TEXT,
    started_at        TEXT,
    completed_at      TEXT,
    created_at        TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at        TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_tasks_wo_status ON tasks(work_order_id, status);
CREATE INDEX IF NOT EXISTS idx_tasks_tech_status ON tasks(assigned_technician_id, status);

CREATE TABLE IF NOT EXISTS interventions (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id       INTEGER NOT NULL UNIQUE REFERENCES tasks(id),
    work_order_id INTEGER NOT NULL REFERENCES work_orders(id),
    technician_id INTEGER NOT NULL REFERENCES technicians(id),
    started_at    TEXT NOT NULL,
    ended_at      TEXT,
    result_status TEXT NOT NULL DEFAULT '',
    summary       TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_interventions_wo ON interventions(work_order_id);

CREATE TABLE IF NOT EXISTS intervention_notes (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    intervention_id INTEGER NOT NULL REFERENCES interventions(id),
    author          TEXT NOT NULL DEFAULT '',
    body            TEXT NOT NULL,
    visibility      TEXT NOT NULL DEFAULT 'internal',
    created_at      TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_notes_intervention ON intervention_notes(intervention_id);

CREATE TABLE IF NOT EXISTS intervention_media (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    intervention_id INTEGER NOT NULL REFERENCES interventions(id),
    filename        TEXT NOT NULL,
    kind            TEXT NOT NULL DEFAULT 'image',
    is_before_work  INTEGER NOT NULL DEFAULT 0,
    is_after_work   INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_media_intervention ON intervention_media(intervention_id);

CREATE TABLE IF NOT EXISTS client_tokens (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    work_order_id INTEGER NOT NULL UNIQUE REFERENCES work_orders(id),
    token         TEXT NOT NULL,
    issued_at     TEXT NOT NULL,
    expires_at    TEXT NOT NULL,
    revoked       INTEGER NOT NULL DEFAULT 0,
    access_count  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS client_access_log (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    work_order_id INTEGER NOT NULL REFERENCES work_orders(id),
    accessed_at   TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    ip_address    TEXT NOT NULL DEFAULT '',
    user_agent    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_access_log_wo ON client_access_log(work_order_id);

CREATE TABLE IF NOT EXISTS predictions (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    vehicle_id          INTEGER NOT NULL REFERENCES vehicles(id),
    generated_at        TEXT NOT NULL,
    days_to_maintenance INTEGER NOT NULL DEFAULT 0,
    confidence          REAL NOT NULL DEFAULT 0,
    anomaly_detected    INTEGER NOT NULL DEFAULT 0,
    anomaly_score       REAL NOT NULL DEFAULT 0,
    model_kind          TEXT NOT NULL DEFAULT 'rule_engine',
    risk_level          TEXT NOT NULL DEFAULT 'low',
    recommendations     TEXT NOT NULL DEFAULT '[]',
    features            TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_predictions_vehicle ON predictions(vehicle_id, generated_at DESC);

CREATE TABLE IF NOT EXISTS outbox (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    topic      TEXT NOT NULL,
    payload    BLOB NOT NULL,
    msg_type   TEXT NOT NULL DEFAULT '',
    ref        TEXT NOT NULL DEFAULT '',
    retries    INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    sent_at    TEXT
);
`
