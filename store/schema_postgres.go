package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS customers (
    id            BIGSERIAL PRIMARY KEY,
    display_name  TEXT NOT NULL,
    company_name  TEXT NOT NULL DEFAULT '',
    primary_email TEXT NOT NULL DEFAULT '',
    phone         TEXT NOT NULL DEFAULT '',
    mobile_phone  TEXT NOT NULL DEFAULT '',
    address       TEXT NOT NULL DEFAULT '',
    latitude      DOUBLE PRECISION,
    longitude     DOUBLE PRECISION,
    deleted       BOOLEAN NOT NULL DEFAULT FALSE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS vehicles (
    id             BIGSERIAL PRIMARY KEY,
    customer_id    BIGINT NOT NULL REFERENCES customers(id),
    make           TEXT NOT NULL DEFAULT '',
    model          TEXT NOT NULL DEFAULT '',
    year           INTEGER NOT NULL DEFAULT 0,
    vin            TEXT NOT NULL DEFAULT '',
    license_plate  TEXT NOT NULL DEFAULT '',
    odometer       BIGINT NOT NULL DEFAULT 0,
    fuel_type      TEXT NOT NULL DEFAULT '',
    last_snapshot_id BIGINT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_vehicles_customer ON vehicles(customer_id);

CREATE TABLE IF NOT EXISTS telemetry_snapshots (
    id                 BIGSERIAL PRIMARY KEY,
    vehicle_id         BIGINT NOT NULL REFERENCES vehicles(id),
    recorded_at        TIMESTAMPTZ NOT NULL,
    odometer_reading   BIGINT NOT NULL DEFAULT 0,
    engine_hours       DOUBLE PRECISION NOT NULL DEFAULT 0,
    usage_intensity    DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_temperature    DOUBLE PRECISION NOT NULL DEFAULT 0,
    vibration_level    DOUBLE PRECISION NOT NULL DEFAULT 0,
    oil_pressure       DOUBLE PRECISION NOT NULL DEFAULT 0,
    brake_wear_pct     DOUBLE PRECISION NOT NULL DEFAULT 0,
    tire_wear_pct      DOUBLE PRECISION NOT NULL DEFAULT 0,
    harsh_braking      INTEGER NOT NULL DEFAULT 0,
    harsh_acceleration INTEGER NOT NULL DEFAULT 0,
    overspeed_minutes  INTEGER NOT NULL DEFAULT 0,
    gps_lat            DOUBLE PRECISION,
    gps_lng            DOUBLE PRECISION,
    source             TEXT NOT NULL DEFAULT 'iot_live',
    data_quality_score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_telemetry_vehicle_time ON telemetry_snapshots(vehicle_id, recorded_at DESC);

CREATE TABLE IF NOT EXISTS technicians (
    id                BIGSERIAL PRIMARY KEY,
    display_name      TEXT NOT NULL,
    role              TEXT NOT NULL DEFAULT 'technician',
    skills            JSONB NOT NULL DEFAULT '[]',
    home_lat          DOUBLE PRECISION,
    home_lng          DOUBLE PRECISION,
    avail_start       TEXT NOT NULL DEFAULT '08:00',
    avail_end         TEXT NOT NULL DEFAULT '17:00',
    hourly_rate       DOUBLE PRECISION NOT NULL DEFAULT 0,
    efficiency_factor DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    active            BOOLEAN NOT NULL DEFAULT TRUE,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS work_orders (
    id                BIGSERIAL PRIMARY KEY,
    claim_number      TEXT NOT NULL UNIQUE,
    customer_id       BIGINT NOT NULL REFERENCES customers(id),
    vehicle_id        BIGINT REFERENCES vehicles(id),
    description       TEXT NOT NULL DEFAULT '',
    priority          TEXT NOT NULL DEFAULT 'medium',
    status            TEXT NOT NULL DEFAULT 'draft',
    created_by        TEXT NOT NULL DEFAULT '',
    assigned_technician_id BIGINT REFERENCES technicians(id),
    estimated_duration_minutes INTEGER NOT NULL DEFAULT 0,
    scheduled_start   TIMESTAMPTZ,
    scheduled_end     TIMESTAMPTZ,
    location_lat      DOUBLE PRECISION,
    location_lng      DOUBLE PRECISION,
    auto_generated    BOOLEAN NOT NULL DEFAULT FALSE,
    prediction_id     BIGINT,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    closed_at         TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_work_orders_status_start ON work_orders(status, scheduled_start);
CREATE INDEX IF NOT EXISTS idx_work_orders_customer ON work_orders(customer_id);

CREATE TABLE IF NOT EXISTS work_order_history (
    id            BIGSERIAL PRIMARY KEY,
    work_order_id BIGINT NOT NULL REFERENCES work_orders(id),
    status        TEXT NOT NULL,
    detail        TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_wo_history_wo ON work_order_history(work_order_id);

CREATE TABLE IF NOT EXISTS work_order_parts (
    id            BIGSERIAL PRIMARY KEY,
    work_order_id BIGINT NOT NULL REFERENCES work_orders(id),
    name          TEXT NOT NULL,
    quantity      DOUBLE PRECISION NOT NULL DEFAULT 1,
    unit_price    DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_wo_parts_wo ON work_order_parts(work_order_id);

CREATE TABLE IF NOT EXISTS tasks (
    id                BIGSERIAL PRIMARY KEY,
    work_order_id     BIGINT NOT NULL REFERENCES work_orders(id),
    title             TEXT NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    task_source       TEXT NOT NULL DEFAULT 'requested',
    created_by_actor  TEXT NOT NULL DEFAULT 'operator',
    status            TEXT NOT NULL DEFAULT 'pending',
    priority          TEXT NOT NULL DEFAULT 'medium',
    assigned_technician_id BIGINT REFERENCES technicians(id),
    estimated_minutes INTEGER NOT NULL DEFAULT 30,
    required_skills   JSONB NOT NULL DEFAULT '[]',
    scheduled_start   TIMESTAMPTZ,
    scheduled_end     TIMESTAMPTZ,
    started_at        TIMESTAMPTZ,
    completed_at      TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_tasks_wo_status ON tasks(work_order_id, status);
CREATE INDEX IF NOT EXISTS idx_tasks_tech_status ON tasks(assigned_technician_id, status);

CREATE TABLE IF NOT EXISTS interventions (
    id            BIGSERIAL PRIMARY KEY,
    task_id       BIGINT NOT NULL UNIQUE REFERENCES tasks(id),
    work_order_id BIGINT NOT NULL REFERENCES work_orders(id),
    technician_id BIGINT NOT NULL REFERENCES technicians(id),
    started_at    TIMESTAMPTZ NOT NULL,
    ended_at      TIMESTAMPTZ,
    result_status TEXT NOT NULL DEFAULT '',
    summary       TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_interventions_wo ON interventions(work_order_id);

CREATE TABLE IF NOT EXISTS intervention_notes (
    id              BIGSERIAL PRIMARY KEY,
    intervention_id BIGINT NOT NULL REFERENCES interventions(id),
    author          TEXT NOT NULL DEFAULT '',
    body            TEXT NOT NULL,
    visibility      TEXT NOT NULL DEFAULT 'internal',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_notes_intervention ON intervention_notes(intervention_id);

CREATE TABLE IF NOT EXISTS intervention_media (
    id              BIGSERIAL PRIMARY KEY,
    intervention_id BIGINT NOT NULL REFERENCES interventions(id),
    filename        TEXT NOT NULL,
    kind            TEXT NOT NULL DEFAULT 'image',
    is_before_work  BOOLEAN NOT NULL DEFAULT FALSE,
    is_after_work   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_media_intervention ON intervention_media(intervention_id);

CREATE TABLE IF NOT EXISTS client_tokens (
    id            BIGSERIAL PRIMARY KEY,
    work_order_id BIGINT NOT NULL UNIQUE REFERENCES work_orders(id),
    token         TEXT NOT NULL,
    issued_at     TIMESTAMPTZ NOT NULL,
    expires_at    TIMESTAMPTZ NOT NULL,
    revoked       BOOLEAN NOT NULL DEFAULT FALSE,
    access_count  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS client_access_log (
    id            BIGSERIAL PRIMARY KEY,
    work_order_id BIGINT NOT NULL REFERENCES work_orders(id),
    accessed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    ip_address    TEXT NOT NULL DEFAULT '',
    user_agent    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_access_log_wo ON client_access_log(work_order_id);

CREATE TABLE IF NOT EXISTS predictions (
    id                  BIGSERIAL PRIMARY KEY,
    vehicle_id          BIGINT NOT NULL REFERENCES vehicles(id),
    generated_at        TIMESTAMPTZ NOT NULL,
    days_to_maintenance INTEGER NOT NULL DEFAULT 0,
    confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
    anomaly_detected    BOOLEAN NOT NULL DEFAULT FALSE,
    anomaly_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
    model_kind          TEXT NOT NULL DEFAULT 'rule_engine',
    risk_level          TEXT NOT NULL DEFAULT 'low',
    recommendations     TEXT NOT NULL DEFAULT '[]',
    features            JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_predictions_vehicle ON predictions(vehicle_id, generated_at DESC);

CREATE TABLE IF NOT EXISTS outbox (
    id         BIGSERIAL PRIMARY KEY,
    topic      TEXT NOT NULL,
    payload    BYTEA NOT NULL,
    msg_type   TEXT NOT NULL DEFAULT '',
    ref        TEXT NOT NULL DEFAULT '',
    retries    INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at    TIMESTAMPTZ
);
`
