package canmux

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestNewMux tests creation of a new Mux
func TestNewMux(t *testing.T) {
	port := NewTestablePort()
	mux := NewMux(port)

	if mux == nil {
		t.Fatal("NewMux returned nil")
	}
	if mux.port != port {
		t.Error("Mux port not set correctly")
	}
	if mux.subscribers == nil {
		t.Error("Mux subscribers map not initialized")
	}
}

// TestMux_Subscribe tests subscribing to the mux
func TestMux_Subscribe(t *testing.T) {
	port := NewTestablePort()
	mux := NewMux(port)

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()

	if id1 == "" || id2 == "" {
		t.Error("subscription returned empty ID")
	}
	if id1 == id2 {
		t.Error("subscription IDs should be unique")
	}
	if ch1 == nil || ch2 == nil {
		t.Error("subscription returned nil channel")
	}

	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 2 {
		t.Errorf("expected 2 subscribers, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()

	mux.Unsubscribe(id1)

	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 1 {
		t.Errorf("expected 1 subscriber after unsubscribe, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()

	// Unsubscribed channel should be closed
	if _, ok := <-ch1; ok {
		t.Error("unsubscribed channel should be closed")
	}
}

// TestMux_SendCommand verifies the CR terminator is appended
func TestMux_SendCommand(t *testing.T) {
	port := NewTestablePort()
	mux := NewMux(port)

	if err := mux.SendCommand("V"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if got := string(port.GetWrittenData()); got != "V\r" {
		t.Errorf("expected %q written, got %q", "V\r", got)
	}

	port.Reset()
	if err := mux.SendCommand("F\r"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if got := string(port.GetWrittenData()); got != "F\r" {
		t.Errorf("CR should not be doubled, got %q", got)
	}
}

func TestMux_SendCommandWriteError(t *testing.T) {
	port := NewTestablePort()
	port.WriteError = errors.New("device gone")
	mux := NewMux(port)

	if err := mux.SendCommand("O"); err == nil {
		t.Error("expected error from failed write")
	}
}

// TestMux_Initialize verifies the close / bitrate / open sequence.
func TestMux_Initialize(t *testing.T) {
	port := NewTestablePort()
	mux := NewMux(port)

	if err := mux.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	want := "C\r" + CommandBitrate + "\rZ0\rO\r"
	if got := string(port.GetWrittenData()); got != want {
		t.Errorf("expected init sequence %q, got %q", want, got)
	}
}

// TestMux_MonitorFanOut verifies that adapter lines reach every subscriber.
func TestMux_MonitorFanOut(t *testing.T) {
	port := NewTestablePort()
	port.BlockReads = true
	mux := NewMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var received []string

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for line := range ch {
			mu.Lock()
			received = append(received, line)
			mu.Unlock()
		}
	}()

	monErr := make(chan error, 1)
	go func() {
		monErr <- mux.Monitor(ctx)
	}()

	// Sends to busy subscribers are dropped, so feed one line at a time and
	// wait for each to land before sending the next.
	waitFor := func(n int) {
		deadline := time.After(2 * time.Second)
		for {
			mu.Lock()
			got := len(received)
			mu.Unlock()
			if got >= n {
				return
			}
			select {
			case <-deadline:
				t.Fatalf("timed out waiting for %d lines, got %d", n, got)
			case <-time.After(10 * time.Millisecond):
			}
		}
	}

	// Give the subscriber and monitor goroutines time to park before the
	// first line arrives; sends to unready subscribers are dropped.
	time.Sleep(100 * time.Millisecond)

	port.AddReadData([]byte("t10081F40000000000000\r"))
	waitFor(1)
	port.AddReadData([]byte("F00\r"))
	waitFor(2)

	cancel()
	if err := <-monErr; err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("Monitor returned unexpected error: %v", err)
	}

	mux.Unsubscribe(id)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if received[0] != "t10081F40000000000000" {
		t.Errorf("first line = %q", received[0])
	}
	if received[1] != "F00" {
		t.Errorf("second line = %q", received[1])
	}
}

// TestScanSLCAN verifies the line splitter handles CR, LF, and trailing data.
func TestScanSLCAN(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"cr terminated", "t1002AABB\rF00\r", []string{"t1002AABB", "F00"}},
		{"lf terminated", "t1002AABB\nF00\n", []string{"t1002AABB", "F00"}},
		{"trailing partial at eof", "t1002AABB\rt200", []string{"t1002AABB", "t200"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			data := []byte(tt.input)
			for len(data) > 0 {
				advance, token, err := scanSLCAN(data, true)
				if err != nil {
					t.Fatalf("scanSLCAN error: %v", err)
				}
				if advance == 0 {
					break
				}
				got = append(got, string(token))
				data = data[advance:]
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tokens %v, want %v", len(got), got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"t10081122334455667788", LineTypeFrame},
		{"T0000010081122334455667788", LineTypeExtendedFrame},
		{"r1000", LineTypeRemoteFrame},
		{"R000000100", LineTypeRemoteFrame},
		{"F00", LineTypeStatus},
		{"z", LineTypeAck},
		{"", LineTypeUnknown},
		{"V1013", LineTypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyLine(tt.line); got != tt.want {
			t.Errorf("ClassifyLine(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestCommandAllowed(t *testing.T) {
	allowed := []string{"O", "C", "F", "V", "N", "S6", "Z1", " F "}
	for _, c := range allowed {
		if !CommandAllowed(c) {
			t.Errorf("CommandAllowed(%q) = false, want true", c)
		}
	}
	denied := []string{"t10081122334455667788", "M00000000", "AX", "S9", ""}
	for _, c := range denied {
		if CommandAllowed(c) {
			t.Errorf("CommandAllowed(%q) = true, want false", c)
		}
	}
}

// TestMux_Close verifies subscribers are closed and the port released.
func TestMux_Close(t *testing.T) {
	port := NewTestablePort()
	mux := NewMux(port)

	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed after Close")
	}
	if !port.Closed {
		t.Error("port should be closed")
	}

	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 0 {
		t.Errorf("expected 0 subscribers after Close, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()
}

func TestDisabledMux(t *testing.T) {
	d := NewDisabledMux()

	id, ch := d.Subscribe()
	if id == "" || ch == nil {
		t.Fatal("Subscribe returned empty results")
	}
	if err := d.SendCommand("O"); err != nil {
		t.Errorf("SendCommand should be a no-op, got %v", err)
	}
	if err := d.Initialize(); err != nil {
		t.Errorf("Initialize should be a no-op, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Monitor(ctx) }()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Monitor should return the context error, got %v", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed after Close")
	}

	// Subscribing after Close returns an already-closed channel
	_, ch2 := d.Subscribe()
	if _, ok := <-ch2; ok {
		t.Error("post-Close subscription should yield a closed channel")
	}
}

func TestPortOptionsNormalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if opts.BaudRate != 115200 || opts.DataBits != 8 || opts.StopBits != 1 || opts.Parity != "N" {
		t.Errorf("unexpected defaults: %+v", opts)
	}

	if _, err := (PortOptions{DataBits: 9}).Normalize(); err == nil {
		t.Error("expected error for invalid data bits")
	}
	if _, err := (PortOptions{StopBits: 3}).Normalize(); err == nil {
		t.Error("expected error for invalid stop bits")
	}
	if _, err := (PortOptions{Parity: "X"}).Normalize(); err == nil {
		t.Error("expected error for invalid parity")
	}

	if !(PortOptions{Parity: "even"}).Equal(PortOptions{Parity: "E", BaudRate: 115200}) {
		t.Error("equivalent options should compare equal")
	}
	if (PortOptions{BaudRate: 9600}).Equal(PortOptions{BaudRate: 115200}) {
		t.Error("different baud rates should not compare equal")
	}
}

func TestMux_ClosingStopsMonitor(t *testing.T) {
	port := NewTestablePort()
	port.BlockReads = true
	mux := NewMux(port)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	// Give the scanner goroutine a moment to block on Read
	time.Sleep(20 * time.Millisecond)
	if err := mux.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil && !strings.Contains(err.Error(), "closed") {
			t.Errorf("unexpected Monitor error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop after Close")
	}
}
