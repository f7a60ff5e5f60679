package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/san-kum/orbitsim/internal/dynamo"
	"github.com/san-kum/orbitsim/internal/sim"
)

// ErrClosed is returned when writing to a closed recorder.
var ErrClosed = errors.New("storage: recorder closed")

var frameHeader = []string{"time", "frame", "body", "name", "x", "y", "z", "vx", "vy", "vz"}

// Store keeps recorded runs under baseDir, one directory per run holding
// metadata.json and frames.csv.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID                   string             `json:"id"`
	Preset               string             `json:"preset,omitempty"`
	Timestamp            time.Time          `json:"timestamp"`
	DynamicsResolution   float64            `json:"dynamics_resolution"`
	KinematicsResolution float64            `json:"kinematics_resolution"`
	CacheHorizon         float64            `json:"cache_horizon"`
	Bodies               []string           `json:"bodies"`
	Frames               int                `json:"frames"`
	SimulatedTime        float64            `json:"simulated_time"`
	Metrics              map[string]float64 `json:"metrics,omitempty"`
}

// Recorder appends every frame it sees to a run's frames.csv. It is a
// sim.Sink; frames already written are skipped so overlapping snapshots
// are recorded once.
type Recorder struct {
	mu      sync.Mutex
	dir     string
	meta    RunMetadata
	file    *os.File
	w       *csv.Writer
	lastID  uint64
	written bool
	closed  bool
}

// Create starts a new run directory for meta.
func (s *Store) Create(meta RunMetadata) (*Recorder, error) {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	if meta.ID == "" {
		name := meta.Preset
		if name == "" {
			name = "run"
		}
		meta.ID = fmt.Sprintf("%s_%d", name, meta.Timestamp.UnixNano())
	}
	dir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(dir, "frames.csv"))
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(frameHeader); err != nil {
		f.Close()
		return nil, err
	}
	return &Recorder{dir: dir, meta: meta, file: f, w: w}, nil
}

func (r *Recorder) ID() string { return r.meta.ID }

func (r *Recorder) Render(req sim.RenderRequest) error {
	return r.Record(req.Snapshot.Frames()...)
}

// Record writes frames newer than the last one written.
func (r *Recorder) Record(frames ...*dynamo.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	for _, f := range frames {
		if r.written && f.KinematicsID() <= r.lastID {
			continue
		}
		for i, b := range f.Bodies() {
			row := []string{
				formatFloat(f.Time()),
				strconv.FormatUint(f.KinematicsID(), 10),
				strconv.Itoa(i),
				b.Appearance.Name,
				formatFloat(b.Position[0]),
				formatFloat(b.Position[1]),
				formatFloat(b.Position[2]),
				formatFloat(b.Velocity[0]),
				formatFloat(b.Velocity[1]),
				formatFloat(b.Velocity[2]),
			}
			if err := r.w.Write(row); err != nil {
				return err
			}
		}
		r.lastID = f.KinematicsID()
		r.written = true
		r.meta.Frames++
		r.meta.SimulatedTime = f.Time()
	}
	r.w.Flush()
	return r.w.Error()
}

// Close flushes the frames and writes metadata.json with the given metrics.
func (r *Recorder) Close(metrics map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.closed = true
	r.meta.Metrics = metrics

	r.w.Flush()
	if err := r.w.Error(); err != nil {
		r.file.Close()
		return err
	}
	if err := r.file.Close(); err != nil {
		return err
	}

	metaFile, err := os.Create(filepath.Join(r.dir, "metadata.json"))
	if err != nil {
		return err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	return enc.Encode(r.meta)
}

// List returns the metadata of every completed run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// BodyRecord is one body at one recorded frame.
type BodyRecord struct {
	Time     float64
	Frame    uint64
	Body     int
	Name     string
	Position [3]float64
	Velocity [3]float64
}

func (s *Store) LoadFrames(runID string) ([]BodyRecord, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "frames.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(frameHeader)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []BodyRecord{}, nil
	}

	out := make([]BodyRecord, 0, len(records)-1)
	for line, rec := range records[1:] {
		br, err := parseBodyRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("frames.csv line %d: %w", line+2, err)
		}
		out = append(out, br)
	}
	return out, nil
}

func parseBodyRecord(rec []string) (BodyRecord, error) {
	var br BodyRecord
	var err error
	if br.Time, err = strconv.ParseFloat(rec[0], 64); err != nil {
		return br, err
	}
	if br.Frame, err = strconv.ParseUint(rec[1], 10, 64); err != nil {
		return br, err
	}
	if br.Body, err = strconv.Atoi(rec[2]); err != nil {
		return br, err
	}
	br.Name = rec[3]
	for k := 0; k < 3; k++ {
		if br.Position[k], err = strconv.ParseFloat(rec[4+k], 64); err != nil {
			return br, err
		}
		if br.Velocity[k], err = strconv.ParseFloat(rec[7+k], 64); err != nil {
			return br, err
		}
	}
	return br, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
