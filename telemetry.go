package server

import "sync/atomic"

// telemetryCounters tracks broadcast and rules-engine activity for the
// diagnostics endpoint.
type telemetryCounters struct {
	bytesSent         atomic.Uint64
	messagesSent      atomic.Uint64
	stateBroadcasts   atomic.Uint64
	eventBroadcasts   atomic.Uint64
	rulesRetries      atomic.Uint64
	rulesFailures     atomic.Uint64
	severApplications atomic.Uint64
	droppedMessages   atomic.Uint64
}

type telemetrySnapshot struct {
	BytesSent         uint64 `json:"bytesSent"`
	MessagesSent      uint64 `json:"messagesSent"`
	StateBroadcasts   uint64 `json:"stateBroadcasts"`
	EventBroadcasts   uint64 `json:"eventBroadcasts"`
	RulesRetries      uint64 `json:"rulesRetries"`
	RulesFailures     uint64 `json:"rulesFailures"`
	SeverApplications uint64 `json:"severApplications"`
	DroppedMessages   uint64 `json:"droppedMessages"`
}

func newTelemetryCounters() *telemetryCounters {
	return &telemetryCounters{}
}

func (t *telemetryCounters) RecordWrite(bytes int) {
	if bytes < 0 {
		bytes = 0
	}
	t.bytesSent.Add(uint64(bytes))
	t.messagesSent.Add(1)
}

func (t *telemetryCounters) RecordStateBroadcast() { t.stateBroadcasts.Add(1) }
func (t *telemetryCounters) RecordEventBroadcast() { t.eventBroadcasts.Add(1) }
func (t *telemetryCounters) RecordRulesRetry()     { t.rulesRetries.Add(1) }
func (t *telemetryCounters) RecordRulesFailure()   { t.rulesFailures.Add(1) }
func (t *telemetryCounters) RecordSeverApplied()   { t.severApplications.Add(1) }
func (t *telemetryCounters) RecordDroppedMessage() { t.droppedMessages.Add(1) }

func (t *telemetryCounters) Snapshot() telemetrySnapshot {
	return telemetrySnapshot{
		BytesSent:         t.bytesSent.Load(),
		MessagesSent:      t.messagesSent.Load(),
		StateBroadcasts:   t.stateBroadcasts.Load(),
		EventBroadcasts:   t.eventBroadcasts.Load(),
		RulesRetries:      t.rulesRetries.Load(),
		RulesFailures:     t.rulesFailures.Load(),
		SeverApplications: t.severApplications.Load(),
		DroppedMessages:   t.droppedMessages.Load(),
	}
}
