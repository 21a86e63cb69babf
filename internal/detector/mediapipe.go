package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// IdleTimeout is how long an unused MediaPipe process is kept alive.
const IdleTimeout = 30 * time.Second

var (
	// ErrScriptNotFound is returned when mediapipe_service.py cannot be located.
	ErrScriptNotFound = errors.New("mediapipe_service.py not found")
	// ErrDetectorClosed is returned by Detect after Close.
	ErrDetectorClosed = errors.New("detector closed")
)

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
//
// Frames are written to the subprocess stdin as a 4-byte big-endian length followed by
// JPEG bytes; the subprocess answers with one JSON line per frame.
type MediaPipeDetector struct {
	config      Config
	scriptPath  string
	command     func(name string, args ...string) *exec.Cmd
	idleTimeout time.Duration

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	closed    bool
	lastUsed  time.Time
	idleTimer *time.Timer
	idleGen   uint64

	// proc is readable without mu so Interrupt can reach a process stuck in Detect.
	proc atomic.Pointer[os.Process]
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started lazily on first detection.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	scriptPath := findMediaPipeScript()
	if scriptPath == "" {
		return nil, ErrScriptNotFound
	}

	return newMediaPipeDetector(config, scriptPath), nil
}

func newMediaPipeDetector(config Config, scriptPath string) *MediaPipeDetector {
	return &MediaPipeDetector{
		config:      config,
		scriptPath:  scriptPath,
		command:     exec.Command,
		idleTimeout: IdleTimeout,
	}
}

// MediaPipeFactory returns a Factory producing one MediaPipe detector per call.
func MediaPipeFactory(config Config) Factory {
	return func() (Detector, error) {
		return NewMediaPipeDetector(config)
	}
}

// Detect analyzes a frame and returns detected hand landmarks.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDetectorClosed
	}

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		d.kill()
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		d.kill()
		return nil, fmt.Errorf("write data: %w", err)
	}

	// Read JSON response
	line, err := d.stdout.ReadString('\n')
	if err != nil {
		d.kill()
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Hands []jsonHand `json:"hands"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("mediapipe service: %s", response.Error)
	}

	result := make([]HandLandmarks, 0, len(response.Hands))
	for _, h := range response.Hands {
		if d.config.MaxHands > 0 && len(result) >= d.config.MaxHands {
			break
		}
		lm, err := h.toHandLandmarks()
		if err != nil {
			return nil, err
		}
		result = append(result, lm)
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return result, nil
}

// Interrupt kills the running subprocess, if any, so that a Detect blocked on it fails.
// The next Detect starts a fresh process.
func (d *MediaPipeDetector) Interrupt() {
	if p := d.proc.Load(); p != nil {
		p.Kill()
	}
}

// Close shuts down the Python process. The detector cannot be used afterwards.
// A Detect stuck on an unresponsive process is interrupted rather than waited for.
func (d *MediaPipeDetector) Close() error {
	if !d.mu.TryLock() {
		d.Interrupt()
		d.mu.Lock()
	}
	defer d.mu.Unlock()

	d.closed = true
	return d.shutdown()
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	// Use virtual environment Python if available
	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = d.command(pythonPath, d.scriptPath,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.proc.Store(d.cmd.Process)
	d.started = true
	d.lastUsed = time.Now()

	return nil
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	d.stopIdleTimer()

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.reset()

	return err
}

// kill terminates a subprocess whose pipes are broken so the next Detect restarts it.
func (d *MediaPipeDetector) kill() {
	if !d.started {
		return
	}

	d.stopIdleTimer()

	if d.stdin != nil {
		d.stdin.Close()
	}
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.cmd.Wait()
	d.reset()
}

func (d *MediaPipeDetector) reset() {
	d.proc.Store(nil)
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
}

func (d *MediaPipeDetector) stopIdleTimer() {
	d.idleGen++
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
}

func (d *MediaPipeDetector) resetIdleTimer() {
	d.stopIdleTimer()
	gen := d.idleGen
	d.idleTimer = time.AfterFunc(d.idleTimeout, func() {
		d.idleStop(gen)
	})
}

// idleStop shuts the process down unless a newer timer has replaced the one with gen.
// A timer that fired while Detect held the lock sees a stale gen and does nothing.
func (d *MediaPipeDetector) idleStop(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.idleGen {
		return
	}
	d.shutdown()
}

func findMediaPipeScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/mediapipe_service.py",
		"../scripts/mediapipe_service.py",
		filepath.Join(execDir, "scripts/mediapipe_service.py"),
		filepath.Join(os.Getenv("HOME"), ".handstream/scripts/mediapipe_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
// It checks for venv/bin/python relative to the project directory.
func findVenvPython() string {
	// Get executable directory to find project root
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".handstream/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

func (h jsonHand) toHandLandmarks() (HandLandmarks, error) {
	if len(h.Points) != NumLandmarks {
		return HandLandmarks{}, fmt.Errorf("hand has %d landmarks, want %d", len(h.Points), NumLandmarks)
	}

	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	copy(lm.Points[:], h.Points)

	return lm, nil
}
