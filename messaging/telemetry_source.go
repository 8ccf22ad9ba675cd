package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"fieldcore/config"
	"fieldcore/store"
	"fieldcore/telemetry"
)

// wireSnapshot is the MQTT ingest format. vehicle_id, recorded_at,
// odometer_reading and engine_hours are required; everything else
// defaults.
type wireSnapshot struct {
	VehicleID         int64    `json:"vehicle_id"`
	RecordedAt        string   `json:"recorded_at"`
	OdometerReading   *int64   `json:"odometer_reading"`
	EngineHours       *float64 `json:"engine_hours"`
	UsageIntensity    float64  `json:"usage_intensity"`
	AvgTemperature    float64  `json:"avg_temperature"`
	VibrationLevel    float64  `json:"vibration_level"`
	OilPressure       float64  `json:"oil_pressure"`
	BrakeWearPct      float64  `json:"brake_wear_pct"`
	TireWearPct       float64  `json:"tire_wear_pct"`
	HarshBraking      int      `json:"harsh_braking"`
	HarshAcceleration int      `json:"harsh_acceleration"`
	OverspeedMinutes  int      `json:"overspeed_minutes"`
	GPSLat            *float64 `json:"gps_lat"`
	GPSLng            *float64 `json:"gps_lng"`
	Source            string   `json:"source"`
	DataQualityScore  *float64 `json:"data_quality_score"`
}

func (w *wireSnapshot) toSnapshot() (*store.TelemetrySnapshot, error) {
	if w.VehicleID == 0 {
		return nil, fmt.Errorf("vehicle_id is required")
	}
	if w.OdometerReading == nil {
		return nil, fmt.Errorf("odometer_reading is required")
	}
	if w.EngineHours == nil {
		return nil, fmt.Errorf("engine_hours is required")
	}
	recorded, err := parseRecordedAt(w.RecordedAt)
	if err != nil {
		return nil, err
	}
	quality := 1.0
	if w.DataQualityScore != nil {
		quality = *w.DataQualityScore
	}
	source := w.Source
	if source == "" {
		source = "iot_live"
	}
	return &store.TelemetrySnapshot{
		VehicleID:         w.VehicleID,
		RecordedAt:        recorded,
		OdometerReading:   *w.OdometerReading,
		EngineHours:       *w.EngineHours,
		UsageIntensity:    w.UsageIntensity,
		AvgTemperature:    w.AvgTemperature,
		VibrationLevel:    w.VibrationLevel,
		OilPressure:       w.OilPressure,
		BrakeWearPct:      w.BrakeWearPct,
		TireWearPct:       w.TireWearPct,
		HarshBraking:      w.HarshBraking,
		HarshAcceleration: w.HarshAcceleration,
		OverspeedMinutes:  w.OverspeedMinutes,
		GPSLat:            w.GPSLat,
		GPSLng:            w.GPSLng,
		Source:            source,
		DataQualityScore:  quality,
	}, nil
}

func parseRecordedAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("recorded_at is required")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable recorded_at %q", s)
}

// TelemetrySource subscribes to the MQTT telemetry topic and feeds
// decoded snapshots into the telemetry service. Malformed payloads are
// dropped with a log line.
type TelemetrySource struct {
	cfg    *config.MQTTConfig
	svc    *telemetry.Service
	client mqtt.Client
}

func NewTelemetrySource(cfg *config.MQTTConfig, svc *telemetry.Service) *TelemetrySource {
	return &TelemetrySource{cfg: cfg, svc: svc}
}

func (ts *TelemetrySource) Start() error {
	broker := fmt.Sprintf("tcp://%s:%d", ts.cfg.Broker, ts.cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(ts.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	ts.client = client

	sub := client.Subscribe(ts.cfg.TelemetryTopic, 1, ts.handle)
	sub.Wait()
	if err := sub.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", ts.cfg.TelemetryTopic, err)
	}
	log.Printf("messaging: mqtt telemetry source on %s topic %s", broker, ts.cfg.TelemetryTopic)
	return nil
}

func (ts *TelemetrySource) handle(_ mqtt.Client, msg mqtt.Message) {
	var w wireSnapshot
	if err := json.Unmarshal(msg.Payload(), &w); err != nil {
		log.Printf("messaging: drop telemetry on %s: %v", msg.Topic(), err)
		return
	}
	snap, err := w.toSnapshot()
	if err != nil {
		log.Printf("messaging: drop telemetry on %s: %v", msg.Topic(), err)
		return
	}
	if _, err := ts.svc.Ingest(snap); err != nil {
		log.Printf("messaging: telemetry ingest vehicle %d: %v", snap.VehicleID, err)
	}
}

func (ts *TelemetrySource) Stop() {
	if ts.client != nil && ts.client.IsConnected() {
		ts.client.Disconnect(250)
	}
}
