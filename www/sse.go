package www

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"fieldcore/engine"
)

type SSEEvent struct {
	Event string
	Data  string
}

type EventHub struct {
	mu        sync.RWMutex
	clients   map[chan SSEEvent]struct{}
	broadcast chan SSEEvent
	stopChan  chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[chan SSEEvent]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	select {
	case h.stopChan <- struct{}{}:
	default:
	}
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.mu.RLock()
			for ch := range h.clients {
				select {
				case ch <- evt:
				default:
					// drop if full
				}
			}
			h.mu.RUnlock()
		case <-keepalive.C:
			h.mu.RLock()
			for ch := range h.clients {
				select {
				case ch <- SSEEvent{Event: "keepalive", Data: "ping"}:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *EventHub) Broadcast(event, data string) {
	select {
	case h.broadcast <- SSEEvent{Event: event, Data: data}:
	default:
	}
}

func (h *EventHub) AddClient() chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetupEngineListeners wires engine events to SSE broadcasts.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.WorkOrderEvent)
		h.Broadcast("workorder-update", fmt.Sprintf(`{"type":"created","work_order_id":%d}`, ev.WorkOrderID))
	}, engine.EventWorkOrderCreated)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.WorkOrderEvent)
		h.Broadcast("workorder-update", fmt.Sprintf(`{"type":"status_changed","work_order_id":%d,"status":"%s"}`, ev.WorkOrderID, ev.Status))
	}, engine.EventWorkOrderStatusChanged)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.WorkOrderEvent)
		h.Broadcast("workorder-update", fmt.Sprintf(`{"type":"closed","work_order_id":%d}`, ev.WorkOrderID))
	}, engine.EventWorkOrderClosed)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.TaskEvent)
		h.Broadcast("task-update", fmt.Sprintf(`{"task_id":%d,"work_order_id":%d,"status":"%s"}`, ev.TaskID, ev.WorkOrderID, ev.Status))
	}, engine.EventTaskAssigned, engine.EventTaskUnassigned, engine.EventTaskStarted,
		engine.EventTaskCompleted, engine.EventTaskCancelled)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.TelemetryEvent)
		h.Broadcast("telemetry-alert", fmt.Sprintf(`{"vehicle_id":%d,"snapshot_id":%d}`, ev.VehicleID, ev.SnapshotID))
	}, engine.EventTelemetryCritical)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.PredictionEvent)
		h.Broadcast("prediction-update", fmt.Sprintf(`{"vehicle_id":%d,"prediction_id":%d,"risk_level":"%s"}`, ev.VehicleID, ev.PredictionID, ev.RiskLevel))
	}, engine.EventPredictionMade)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.PreventiveEvent)
		h.Broadcast("workorder-update", fmt.Sprintf(`{"type":"preventive","work_order_id":%d,"vehicle_id":%d,"task_count":%d}`, ev.WorkOrderID, ev.VehicleID, ev.TaskCount))
	}, engine.EventPreventiveGenerated)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.JobEvent)
		h.Broadcast("job-update", fmt.Sprintf(`{"job_id":"%s","kind":"%s","status":"%s"}`, ev.JobID, ev.Kind, ev.Status))
	}, engine.EventJobFinished)
}

// SSEHandler serves the SSE endpoint.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.AddClient()
	defer h.RemoveClient(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
				log.Printf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
