package metrics

import "testing"

func TestSnapshotReflectsIncrements(t *testing.T) {
	before := Snapshot()["requests_total"]
	RequestCompleted()
	after := Snapshot()["requests_total"]
	if after != before+1 {
		t.Fatalf("requests_total = %d, want %d", after, before+1)
	}
}

func TestActiveConnectionsTracksOpenAndClose(t *testing.T) {
	before := Snapshot()["active_connections"]
	ConnectionOpened()
	mid := Snapshot()["active_connections"]
	if mid != before+1 {
		t.Fatalf("active_connections after open = %d, want %d", mid, before+1)
	}
	ConnectionClosed()
	after := Snapshot()["active_connections"]
	if after != before {
		t.Fatalf("active_connections after close = %d, want %d", after, before)
	}
}
