package server

import "testing"

func TestTelemetryCountersAccumulate(t *testing.T) {
	counters := newTelemetryCounters()

	counters.RecordWrite(100)
	counters.RecordWrite(50)
	counters.RecordStateBroadcast()
	counters.RecordEventBroadcast()
	counters.RecordRulesRetry()
	counters.RecordRulesFailure()
	counters.RecordSeverApplied()
	counters.RecordDroppedMessage()

	snap := counters.Snapshot()
	if snap.BytesSent != 150 || snap.MessagesSent != 2 {
		t.Fatalf("unexpected write totals %+v", snap)
	}
	if snap.StateBroadcasts != 1 || snap.EventBroadcasts != 1 {
		t.Fatalf("unexpected broadcast totals %+v", snap)
	}
	if snap.RulesRetries != 1 || snap.RulesFailures != 1 || snap.SeverApplications != 1 || snap.DroppedMessages != 1 {
		t.Fatalf("unexpected rules totals %+v", snap)
	}
}

func TestTelemetryRecordWriteClampsNegative(t *testing.T) {
	counters := newTelemetryCounters()
	counters.RecordWrite(-5)

	snap := counters.Snapshot()
	if snap.BytesSent != 0 || snap.MessagesSent != 1 {
		t.Fatalf("expected clamped byte count, got %+v", snap)
	}
}
