package ocpp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu      sync.Mutex
	frames  map[string][][]any
	sendErr error
}

func newFakeSender() *fakeSender {
	return &fakeSender{frames: make(map[string][][]any)}
}

func (f *fakeSender) Send(ctx context.Context, stationID string, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	var decoded []any
	if err := json.Unmarshal(frame, &decoded); err != nil {
		return err
	}
	f.frames[stationID] = append(f.frames[stationID], decoded)
	return nil
}

func (f *fakeSender) count(stationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames[stationID])
}

func (f *fakeSender) frame(stationID string, index int) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.frames[stationID]) {
		return nil
	}
	return f.frames[stationID][index]
}

type logEntry struct {
	station   string
	direction string
	action    string
}

type fakeLog struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *fakeLog) Save(ctx context.Context, mc MessageContext, direction, action string, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{station: mc.StationID, direction: direction, action: action})
	return nil
}

func (l *fakeLog) snapshot() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), l.entries...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func stubIDs(t *testing.T, ids ...string) {
	t.Helper()
	original := idGenerator
	idGenerator = func() string {
		if len(ids) == 0 {
			return original()
		}
		id := ids[0]
		ids = ids[1:]
		return id
	}
	t.Cleanup(func() { idGenerator = original })
}
