package web

import (
	"context"

	"github.com/teslashibe/go-mantra/pkg/conversation"
	"github.com/teslashibe/go-mantra/pkg/hub"
)

// MonitorSink broadcasts session events to monitor clients. It never
// blocks; events are dropped when the hub is saturated.
type MonitorSink struct {
	hub *hub.Hub
}

// NewMonitorSink creates a sink over h.
func NewMonitorSink(h *hub.Hub) *MonitorSink {
	return &MonitorSink{hub: h}
}

// Emit broadcasts ev as JSON.
func (m *MonitorSink) Emit(_ context.Context, ev conversation.Event) error {
	return m.hub.BroadcastJSON(ev)
}

var _ conversation.Sink = (*MonitorSink)(nil)
