package observability

// Routing keys on the events exchange.
const (
	RoutingWSEvents = "ws_events.users"
	RoutingAudit    = "audit.chat"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// WSPayload describes one connection lifecycle transition.
type WSPayload struct {
	WS       WSInfo       `json:"ws"`
	Identity IdentityInfo `json:"identity"`
}

type WSInfo struct {
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason"`
}

type IdentityInfo struct {
	Username string `json:"username"`
	DeviceID string `json:"device_id"`
	IP       string `json:"ip"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
