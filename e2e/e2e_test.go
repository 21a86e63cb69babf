package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/handstream/internal/app"
	"github.com/ayusman/handstream/internal/detector"
	"github.com/ayusman/handstream/internal/metrics"
	"github.com/ayusman/handstream/internal/server"
	"github.com/ayusman/handstream/internal/session"
	"github.com/ayusman/handstream/testdata"
	"github.com/gorilla/websocket"
)

type trackingResponse struct {
	HandDetected bool `json:"hand_detected"`
	Hands        []struct {
		X         float64            `json:"x"`
		Y         float64            `json:"y"`
		Z         float64            `json:"z"`
		Scale     float64            `json:"scale"`
		Landmarks []detector.Point3D `json:"landmarks"`
		Gesture   string             `json:"gesture"`
		RotationZ float64            `json:"rotation_z"`
		Label     string             `json:"label"`
	} `json:"hands"`
}

// detectorPool hands out a fresh mock detector per session and remembers them.
type detectorPool struct {
	mu        sync.Mutex
	hands     []detector.HandLandmarks
	detectors []*detector.MockDetector
}

func (p *detectorPool) factory() (detector.Detector, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d := detector.NewMockDetector()
	d.SetHands(p.hands)
	p.detectors = append(p.detectors, d)
	return d, nil
}

func (p *detectorPool) all() []*detector.MockDetector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*detector.MockDetector(nil), p.detectors...)
}

func startServer(t *testing.T, factory detector.Factory) string {
	t.Helper()

	srv := server.New(server.Config{
		App:     app.New(app.DefaultConfig(), factory),
		Session: session.DefaultConfig(),
		Metrics: metrics.New(),
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/hand-tracking"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d, want %d", resp.StatusCode, http.StatusSwitchingProtocols)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) trackingResponse {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var resp trackingResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", data, err)
	}
	return resp
}

func TestE2E_HandTracking(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	pool := &detectorPool{hands: []detector.HandLandmarks{detector.FistLandmarks()}}
	url := startServer(t, pool.factory)
	frame := testdata.MustDataURLFrame()

	t.Run("FistFrame", func(t *testing.T) {
		conn := dial(t, url)
		send(t, conn, frame)

		resp := receive(t, conn)
		if !resp.HandDetected || len(resp.Hands) != 1 {
			t.Fatalf("response = %+v, want one hand", resp)
		}

		hand := resp.Hands[0]
		if hand.Gesture != "fist" {
			t.Errorf("gesture = %q, want fist", hand.Gesture)
		}
		if hand.Label != "Right" {
			t.Errorf("label = %q, want Right", hand.Label)
		}
		if len(hand.Landmarks) != detector.NumLandmarks {
			t.Errorf("len(landmarks) = %d, want %d", len(hand.Landmarks), detector.NumLandmarks)
		}
		// Anchor is the wrist / middle MCP midpoint of the fixture.
		if hand.X < 0.49 || hand.X > 0.51 || hand.Y < 0.73 || hand.Y > 0.75 {
			t.Errorf("anchor = (%v, %v), want about (0.5, 0.74)", hand.X, hand.Y)
		}
	})

	t.Run("BadFrameThenValidFrame", func(t *testing.T) {
		conn := dial(t, url)
		send(t, conn, "data:image/jpeg;base64,@@@@")
		send(t, conn, frame)

		resp := receive(t, conn)
		if !resp.HandDetected {
			t.Errorf("first response hand_detected = false, want the valid frame's result")
		}

		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		if _, data, err := conn.ReadMessage(); err == nil {
			t.Errorf("unexpected second response %s", data)
		}
	})

	t.Run("ConcurrentSessions", func(t *testing.T) {
		before := len(pool.all())

		const clients = 3
		var wg sync.WaitGroup
		for range clients {
			wg.Add(1)
			go func() {
				defer wg.Done()

				conn, _, err := websocket.DefaultDialer.Dial(url, nil)
				if err != nil {
					t.Errorf("Dial() error = %v", err)
					return
				}
				defer conn.Close()

				for range 3 {
					if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
						t.Errorf("WriteMessage() error = %v", err)
						return
					}
					conn.SetReadDeadline(time.Now().Add(5 * time.Second))
					if _, _, err := conn.ReadMessage(); err != nil {
						t.Errorf("ReadMessage() error = %v", err)
						return
					}
				}
			}()
		}
		wg.Wait()

		detectors := pool.all()[before:]
		if len(detectors) != clients {
			t.Fatalf("detectors created = %d, want %d", len(detectors), clients)
		}
		for i, d := range detectors {
			if d.Calls() != 3 {
				t.Errorf("detector %d calls = %d, want 3", i, d.Calls())
			}
		}
	})
}

func TestE2E_NoHands(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	url := startServer(t, detector.MockFactory(detector.NewMockDetector()))
	conn := dial(t, url)

	send(t, conn, testdata.MustDataURLFrame())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if got, want := string(data), `{"hand_detected":false,"hands":[]}`; got != want {
		t.Errorf("response = %s, want %s", got, want)
	}
}

func TestE2E_Ordering(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	mock := detector.NewMockDetector()
	mock.SetSequence([][]detector.HandLandmarks{
		{detector.FistLandmarks()},
		{},
		{detector.OpenPalmLandmarks()},
		{detector.FistLandmarks()},
	})
	url := startServer(t, detector.MockFactory(mock))
	conn := dial(t, url)

	frame := testdata.MustDataURLFrame()
	for range 4 {
		send(t, conn, frame)
	}

	want := []string{"fist", "", "open", "fist"}
	for i, gesture := range want {
		resp := receive(t, conn)

		if gesture == "" {
			if resp.HandDetected || len(resp.Hands) != 0 {
				t.Errorf("response %d = %+v, want no hands", i, resp)
			}
			continue
		}
		if len(resp.Hands) != 1 || resp.Hands[0].Gesture != gesture {
			t.Errorf("response %d = %+v, want %s", i, resp, gesture)
		}
	}
}

func TestE2E_DetectorClosedOnDisconnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	mock := detector.NewMockDetector()
	url := startServer(t, detector.MockFactory(mock))
	conn := dial(t, url)

	send(t, conn, testdata.MustDataURLFrame())
	receive(t, conn)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		t.Fatalf("WriteMessage(close) error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !mock.Closed() {
		if time.Now().After(deadline) {
			t.Fatal("detector not closed after client disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
