package engine

import (
	"fmt"
	"log"

	"fieldcore/messaging"
)

// wireEventHandlers connects the domain event flow: critical telemetry
// drives an immediate prediction and, on elevated risk, a preventive
// work order; lifecycle milestones land in the notification outbox.
func (e *Engine) wireEventHandlers() {
	e.Events.SubscribeTypes(func(evt Event) {
		te, ok := evt.Payload.(TelemetryEvent)
		if !ok {
			return
		}
		if e.vehicles != nil {
			if snap, err := e.db.LatestSnapshot(te.VehicleID); err == nil {
				e.vehicles.Refresh(snap)
			}
		}
	}, EventTelemetryIngested)

	e.Events.SubscribeTypes(func(evt Event) {
		te, ok := evt.Payload.(TelemetryEvent)
		if !ok {
			return
		}
		e.enqueueNotification("telemetry_critical", fmt.Sprintf("vehicle:%d", te.VehicleID), te)
		go e.handleCriticalTelemetry(te)
	}, EventTelemetryCritical)

	e.Events.SubscribeTypes(func(evt Event) {
		we, ok := evt.Payload.(WorkOrderEvent)
		if !ok {
			return
		}
		msgType := evt.Type.String()
		e.enqueueNotification(msgType, fmt.Sprintf("work_order:%d", we.WorkOrderID), we)
	}, EventWorkOrderCreated, EventWorkOrderClosed)

	e.Events.SubscribeTypes(func(evt Event) {
		te, ok := evt.Payload.(TaskEvent)
		if !ok {
			return
		}
		e.enqueueNotification("task_assigned", fmt.Sprintf("task:%d", te.TaskID), te)
	}, EventTaskAssigned)

	e.Events.SubscribeTypes(func(evt Event) {
		pe, ok := evt.Payload.(PreventiveEvent)
		if !ok {
			return
		}
		e.enqueueNotification("preventive_generated", fmt.Sprintf("work_order:%d", pe.WorkOrderID), pe)
	}, EventPreventiveGenerated)
}

// handleCriticalTelemetry runs the predict-then-generate chain off the
// ingest path.
func (e *Engine) handleCriticalTelemetry(te TelemetryEvent) {
	pred, err := e.predictSvc.Predict(te.VehicleID)
	if err != nil {
		log.Printf("engine: predict after critical telemetry for vehicle %d: %v", te.VehicleID, err)
		return
	}
	switch pred.Record.RiskLevel {
	case "high", "critical":
		if _, err := e.preventSvc.Generate(te.VehicleID, pred); err != nil {
			log.Printf("engine: preventive generate for vehicle %d: %v", te.VehicleID, err)
		}
	}
}

func (e *Engine) enqueueNotification(msgType, ref string, payload any) {
	data, err := messaging.EncodeNotification(msgType, ref, payload)
	if err != nil {
		log.Printf("engine: encode %s notification: %v", msgType, err)
		return
	}
	if err := e.db.EnqueueOutbox(e.cfg.Messaging.NotificationsTopic, data, msgType, ref); err != nil {
		log.Printf("engine: enqueue %s notification: %v", msgType, err)
	}
}
