package control

import (
	"context"
	"os"
	"testing"
	"time"

	"tire/hardware"
	"tire/localize"
	"tire/navgraph"
)

type fakePort struct {
	imu     hardware.IMUSample
	keys    chan hardware.KeyPress
	scans   [][]hardware.BLEReading
	scanIdx int
	played  []string
	powered bool
}

func newFakePort() *fakePort {
	return &fakePort{
		keys:    make(chan hardware.KeyPress, 4),
		powered: true,
	}
}

func (f *fakePort) Initialize() error { return nil }
func (f *fakePort) ReadIMU() hardware.IMUSample { return f.imu }
func (f *fakePort) ScanBLE() []hardware.BLEReading {
	if len(f.scans) == 0 {
		return nil
	}
	s := f.scans[f.scanIdx%len(f.scans)]
	f.scanIdx++
	return s
}
func (f *fakePort) PollKey() hardware.KeyPress {
	select {
	case k := <-f.keys:
		return k
	default:
		return hardware.KeyNone
	}
}
func (f *fakePort) PlayAudio(cueID string) { f.played = append(f.played, cueID) }
func (f *fakePort) PowerOn() bool          { return f.powered }

func testGraph(t *testing.T) *navgraph.Graph {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/m.json"
	content := `{"nodes":[
		{"id":"RP_HALLWAY_START","x":0,"y":0,"neighbors":{"RP_HALLWAY_END":10}},
		{"id":"RP_HALLWAY_END","x":0,"y":10,"neighbors":{"RP_HALLWAY_START":10}}
	]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write map: %v", err)
	}
	g, err := navgraph.Load(path)
	if err != nil {
		t.Fatalf("load map: %v", err)
	}
	return g
}

func TestRun_StartNavigationFindsPathAndPlaysCue(t *testing.T) {
	port := newFakePort()
	g := testGraph(t)
	loc := localize.New(3)
	loc.UsePlaceholderMap()

	l := New(port, g, loc, 1.0)
	port.keys <- hardware.KeyStartNavigation

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	l.Run(ctx)

	if !l.session.IsNavigating {
		t.Fatalf("expected navigation to start")
	}
	found := false
	for _, c := range port.played {
		if c == hardware.CueNavigationStarted {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected navigation_started cue, got %v", port.played)
	}
}

func TestRun_WhereAmIUpdatesEKFViaBLE(t *testing.T) {
	port := newFakePort()
	port.scans = [][]hardware.BLEReading{{
		{BeaconID: "BEACON_ID_1", RSSI: -90},
		{BeaconID: "BEACON_ID_2", RSSI: -50},
		{BeaconID: "BEACON_ID_3", RSSI: -80},
	}}
	g := testGraph(t)
	loc := localize.New(1)
	loc.UsePlaceholderMap()

	l := New(port, g, loc, 1.0)
	port.keys <- hardware.KeyWhereAmI

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	l.Run(ctx)

	state := l.ekf.State()
	if state.Y <= 0 {
		t.Fatalf("expected EKF pulled toward RP_HALLWAY_END (y=10), got %+v", state)
	}
}

func TestRun_ExitsWhenPowerOffWithoutWaitingForContext(t *testing.T) {
	port := newFakePort()
	port.powered = false
	g := testGraph(t)
	loc := localize.New(1)
	loc.UsePlaceholderMap()

	l := New(port, g, loc, 1.0)

	done := make(chan struct{})
	go func() {
		l.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("expected Run to return immediately when power is off")
	}
}

func TestRun_StartNavigationWithNoPathPlaysErrorCue(t *testing.T) {
	port := newFakePort()
	dir := t.TempDir()
	path := dir + "/m.json"
	// Only one, disconnected node besides the destination.
	content := `{"nodes":[{"id":"RP_HALLWAY_START","x":0,"y":0},{"id":"RP_HALLWAY_END","x":0,"y":10}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write map: %v", err)
	}
	g, err := navgraph.Load(path)
	if err != nil {
		t.Fatalf("load map: %v", err)
	}
	loc := localize.New(1)
	loc.UsePlaceholderMap()

	l := New(port, g, loc, 1.0)
	port.keys <- hardware.KeyStartNavigation

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	l.Run(ctx)

	found := false
	for _, c := range port.played {
		if c == hardware.CueErrorNoPath {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected error_no_path cue, got %v", port.played)
	}
	if l.session.IsNavigating {
		t.Fatalf("expected navigation not to start")
	}
}
