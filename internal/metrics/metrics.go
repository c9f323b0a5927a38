package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dialcraft/router/internal/types"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Routing metrics
	RoutingAttemptsTotal int64
	RoutingErrorsTotal   int64
	FailoversTotal       int64
	routingByStrategy    map[types.Strategy]int64
	decisionsByAction    map[types.DecisionAction]int64

	// Queue metrics
	EnqueuedTotal  int64
	DequeuedTotal  int64
	AbandonedTotal int64

	// IVR metrics
	FlowsCompiledTotal    int64
	FlowCompileErrors     int64
	DTMFInputsTotal       int64
	DTMFRedeliveriesTotal int64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	WebSocketMessagesTotal       int64
	WebSocketErrorsTotal         int64
	activeConnections            int64

	// HTTP metrics
	httpRequestsTotal    map[string]map[int]int64 // endpoint -> status -> count
	httpRequestDurations map[string][]float64     // endpoint -> durations

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			routingByStrategy:    make(map[types.Strategy]int64),
			decisionsByAction:    make(map[types.DecisionAction]int64),
			httpRequestsTotal:    make(map[string]map[int]int64),
			httpRequestDurations: make(map[string][]float64),
			startTime:            time.Now(),
		}
	})
	return instance
}

// RecordRoutingAttempt counts one routed call by strategy and outcome
func (m *Metrics) RecordRoutingAttempt(strategy types.Strategy, action types.DecisionAction) {
	m.mu.Lock()
	m.RoutingAttemptsTotal++
	m.routingByStrategy[strategy]++
	m.decisionsByAction[action]++
	m.mu.Unlock()
}

// RecordRoutingError increments the routing error counter
func (m *Metrics) RecordRoutingError() {
	m.mu.Lock()
	m.RoutingErrorsTotal++
	m.mu.Unlock()
}

// RecordFailover increments the failover counter
func (m *Metrics) RecordFailover() {
	m.mu.Lock()
	m.FailoversTotal++
	m.mu.Unlock()
}

// RecordEnqueue increments the queue admission counter
func (m *Metrics) RecordEnqueue() {
	m.mu.Lock()
	m.EnqueuedTotal++
	m.mu.Unlock()
}

// RecordDequeue increments the queue assignment counter
func (m *Metrics) RecordDequeue() {
	m.mu.Lock()
	m.DequeuedTotal++
	m.mu.Unlock()
}

// RecordAbandon increments the abandoned-call counter
func (m *Metrics) RecordAbandon() {
	m.mu.Lock()
	m.AbandonedTotal++
	m.mu.Unlock()
}

// RecordFlowCompiled records one flow compilation
func (m *Metrics) RecordFlowCompiled() {
	m.mu.Lock()
	m.FlowsCompiledTotal++
	m.mu.Unlock()
}

// RecordFlowCompileError increments the compile error counter
func (m *Metrics) RecordFlowCompileError() {
	m.mu.Lock()
	m.FlowCompileErrors++
	m.mu.Unlock()
}

// RecordDTMFInput counts one keypad input; redelivered marks a
// duplicate webhook delivery that was answered from saved state
func (m *Metrics) RecordDTMFInput(redelivered bool) {
	m.mu.Lock()
	m.DTMFInputsTotal++
	if redelivered {
		m.DTMFRedeliveriesTotal++
	}
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordWebSocketMessage increments message counter
func (m *Metrics) RecordWebSocketMessage() {
	m.mu.Lock()
	m.WebSocketMessagesTotal++
	m.mu.Unlock()
}

// RecordWebSocketError increments WebSocket error counter
func (m *Metrics) RecordWebSocketError() {
	m.mu.Lock()
	m.WebSocketErrorsTotal++
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++

	// Keep last 100 durations for percentile calculation
	if len(m.httpRequestDurations[endpoint]) >= 100 {
		m.httpRequestDurations[endpoint] = m.httpRequestDurations[endpoint][1:]
	}
	m.httpRequestDurations[endpoint] = append(m.httpRequestDurations[endpoint], duration.Seconds())
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("router_uptime_seconds", time.Since(m.startTime).Seconds())

		// Routing metrics
		write("router_routing_attempts_total", m.RoutingAttemptsTotal)
		write("router_routing_errors_total", m.RoutingErrorsTotal)
		write("router_failovers_total", m.FailoversTotal)
		for strategy, count := range m.routingByStrategy {
			write("router_routing_by_strategy", count, "strategy", string(strategy))
		}
		for action, count := range m.decisionsByAction {
			write("router_decisions_by_action", count, "action", string(action))
		}

		// Queue metrics
		write("router_queue_enqueued_total", m.EnqueuedTotal)
		write("router_queue_dequeued_total", m.DequeuedTotal)
		write("router_queue_abandoned_total", m.AbandonedTotal)

		// IVR metrics
		write("router_flows_compiled_total", m.FlowsCompiledTotal)
		write("router_flow_compile_errors_total", m.FlowCompileErrors)
		write("router_dtmf_inputs_total", m.DTMFInputsTotal)
		write("router_dtmf_redeliveries_total", m.DTMFRedeliveriesTotal)

		// WebSocket metrics
		write("router_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("router_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("router_websocket_active_connections", m.activeConnections)
		write("router_websocket_messages_total", m.WebSocketMessagesTotal)
		write("router_websocket_errors_total", m.WebSocketErrorsTotal)

		// HTTP metrics
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("router_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
