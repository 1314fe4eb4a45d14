// Package keyservice coordinates calibration, frame processing, persistence
// and publication of key transitions.
package keyservice

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/keyscan/internal/apperr"
	"github.com/starford/keyscan/internal/checksum"
	"github.com/starford/keyscan/internal/detector"
	"github.com/starford/keyscan/internal/frames"
	"github.com/starford/keyscan/internal/index"
	"github.com/starford/keyscan/internal/midiout"
	"github.com/starford/keyscan/internal/models"
	"github.com/starford/keyscan/internal/piano"
	"github.com/starford/keyscan/internal/sse"
)

// Publisher receives key and calibration events.
type Publisher interface {
	PublishKeyEvent(kind string, data any)
}

type nopPublisher struct{}

func (nopPublisher) PublishKeyEvent(string, any) {}

// Config holds detection parameters.
type Config struct {
	Anchor         image.Point
	BaseOctave     int
	PressThreshold int
}

// Calibration describes the octave currently in use.
type Calibration struct {
	ID             string       `json:"id"`
	Source         string       `json:"source"`
	Anchor         models.Point `json:"anchor"`
	TemplateWidth  int          `json:"template_width"`
	TemplateHeight int          `json:"template_height"`
	CreatedAt      time.Time    `json:"created_at"`
}

// OctaveView is the calibration plus the live state of its keys.
type OctaveView struct {
	Calibration Calibration         `json:"calibration"`
	Keys        []detector.KeyState `json:"keys"`
}

// FrameResult reports the outcome of processing one frame.
type FrameResult struct {
	Name        string                `json:"name"`
	Checksum    string                `json:"checksum"`
	Skipped     bool                  `json:"skipped"`
	Transitions []detector.Transition `json:"transitions"`
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets detection parameters.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithRecorder sets the MIDI recorder.
func WithRecorder(r *midiout.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service coordinates frames, the index, the tracker and the recorder.
type Service struct {
	store    frames.Provider
	db       index.KeyIndex
	template image.Image

	cfg      Config
	recorder *midiout.Recorder
	pub      Publisher
	logger   *slog.Logger

	// submitMu makes the existence check and write of SubmitFrame atomic.
	submitMu sync.Mutex

	// mu serializes calibration swaps and frame processing so persisted
	// events follow tracker order.
	mu          sync.Mutex
	tracker     *detector.Tracker
	calibration *Calibration
}

// New creates a key service calibrating against template.
func New(store frames.Provider, db index.KeyIndex, template image.Image, opts ...Option) *Service {
	s := &Service{
		store:    store,
		db:       db,
		template: template,
		cfg:      Config{BaseOctave: detector.DefaultBaseOctave, PressThreshold: detector.DefaultThreshold},
		pub:      nopPublisher{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recorder == nil {
		s.recorder = midiout.NewRecorder(midiout.Options{})
	}
	return s
}

// Calibrate builds a new octave from a stored frame. A nil anchor uses the
// configured one.
func (s *Service) Calibrate(ctx context.Context, frame string, anchor *image.Point) (*OctaveView, error) {
	data, err := s.store.Read(frame)
	if err != nil {
		return nil, err
	}
	img, err := frames.Decode(data)
	if err != nil {
		return nil, err
	}
	return s.CalibrateImage(ctx, img, frame, anchor)
}

// CalibrateImage builds a new octave from img, persists it and makes it current.
// Keys held under the previous calibration are released.
func (s *Service) CalibrateImage(_ context.Context, img image.Image, source string, anchor *image.Point) (*OctaveView, error) {
	a := s.cfg.Anchor
	if anchor != nil {
		a = *anchor
	}
	octave, err := piano.Build(a, img, s.template)
	if err != nil {
		return nil, fmt.Errorf("keyservice: calibrate: %w", err)
	}

	tb := s.template.Bounds()
	cal := Calibration{
		ID:             uuid.NewString(),
		Source:         source,
		Anchor:         models.PointOf(a),
		TemplateWidth:  tb.Dx(),
		TemplateHeight: tb.Dy(),
		CreatedAt:      time.Now().UTC(),
	}
	keys := make([]index.KeyRow, 0, piano.Keys)
	for _, n := range octave.Notes {
		if n.Matched == 0 {
			s.logger.Warn("calibrate: key did not match template",
				slog.String("key", piano.FormatCode(detector.AbsoluteCode(n.Code, s.cfg.BaseOctave))))
		}
		keys = append(keys, index.KeyRow{
			Semitone:   n.Code,
			X:          n.Location.X,
			Y:          n.Location.Y,
			R:          n.DefaultColor[0],
			G:          n.DefaultColor[1],
			B:          n.DefaultColor[2],
			Accidental: n.IsAccidental,
			Matched:    n.Matched,
		})
	}
	if err := s.db.InsertCalibration(index.CalibrationRow{
		ID:             cal.ID,
		Source:         cal.Source,
		AnchorX:        a.X,
		AnchorY:        a.Y,
		TemplateWidth:  cal.TemplateWidth,
		TemplateHeight: cal.TemplateHeight,
		CreatedAt:      cal.CreatedAt,
	}, keys); err != nil {
		return nil, err
	}

	view := s.install(octave, cal)
	s.logger.Info("calibrate: octave calibrated",
		slog.String("id", cal.ID),
		slog.String("source", source),
		slog.Int("anchor_x", a.X),
		slog.Int("anchor_y", a.Y))
	s.pub.PublishKeyEvent(sse.TypeOctaveCalibrated, view)
	return view, nil
}

// Restore reinstates the most recent stored calibration with every key released.
func (s *Service) Restore(_ context.Context) (*OctaveView, error) {
	row, keys, err := s.db.LatestCalibration()
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperr.ErrNotCalibrated
	}
	if len(keys) != piano.Keys {
		return nil, fmt.Errorf("keyservice: restore %s: %d keys stored, want %d", row.ID, len(keys), piano.Keys)
	}

	octave := &piano.Octave{}
	for _, k := range keys {
		if k.Semitone < 0 || k.Semitone >= piano.Keys {
			return nil, fmt.Errorf("keyservice: restore %s: bad semitone %d", row.ID, k.Semitone)
		}
		octave.Notes[k.Semitone] = piano.Note{
			Code:         k.Semitone,
			Location:     image.Pt(k.X, k.Y),
			DefaultColor: piano.Color{k.R, k.G, k.B},
			IsAccidental: k.Accidental,
			Matched:      k.Matched,
		}
	}

	view := s.install(octave, Calibration{
		ID:             row.ID,
		Source:         row.Source,
		Anchor:         models.Point{X: row.AnchorX, Y: row.AnchorY},
		TemplateWidth:  row.TemplateWidth,
		TemplateHeight: row.TemplateHeight,
		CreatedAt:      row.CreatedAt,
	})
	s.logger.Info("restore: calibration restored", slog.String("id", row.ID))
	return view, nil
}

func (s *Service) install(octave *piano.Octave, cal Calibration) *OctaveView {
	tracker := detector.NewTracker(octave,
		detector.WithThreshold(s.cfg.PressThreshold),
		detector.WithBaseOctave(s.cfg.BaseOctave))

	s.mu.Lock()
	var released []detector.Transition
	if s.tracker != nil {
		released = s.tracker.Release()
	}
	s.tracker = tracker
	s.calibration = &cal
	s.mu.Unlock()

	for _, tr := range released {
		s.recorder.Record(tr.Code, false)
	}
	return &OctaveView{Calibration: cal, Keys: tracker.Snapshot()}
}

// Octave returns the current calibration and key states.
func (s *Service) Octave(_ context.Context) (*OctaveView, error) {
	s.mu.Lock()
	tracker, cal := s.tracker, s.calibration
	s.mu.Unlock()
	if tracker == nil {
		return nil, apperr.ErrNotCalibrated
	}
	return &OctaveView{Calibration: *cal, Keys: tracker.Snapshot()}, nil
}

// ProcessFrame samples a stored frame. Frames whose content was already
// processed are skipped.
func (s *Service) ProcessFrame(ctx context.Context, name string) (*FrameResult, error) {
	data, err := s.store.Read(name)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, name, data)
}

// SubmitFrame stores a new frame and processes it.
func (s *Service) SubmitFrame(ctx context.Context, name string, data []byte) (*FrameResult, error) {
	if _, err := frames.Decode(data); err != nil {
		return nil, err
	}
	if err := s.create(name, data); err != nil {
		return nil, err
	}
	return s.process(ctx, name, data)
}

func (s *Service) create(name string, data []byte) error {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	if _, err := s.store.Read(name); err == nil {
		return apperr.ErrAlreadyExists
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return s.store.Write(name, data)
}

func (s *Service) process(_ context.Context, name string, data []byte) (*FrameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tracker == nil {
		return nil, apperr.ErrNotCalibrated
	}

	sum := checksum.Sum(data)
	prev, err := s.db.FrameChecksum(name)
	if err != nil {
		return nil, err
	}
	res := &FrameResult{Name: name, Checksum: sum, Transitions: []detector.Transition{}}
	if prev == sum {
		res.Skipped = true
		return res, nil
	}

	img, err := frames.Decode(data)
	if err != nil {
		return nil, err
	}
	// Key state only advances once the transitions are stored, so a failed
	// write leaves the frame to be reported again.
	transitions, err := s.tracker.Pending(img)
	if err != nil {
		return nil, fmt.Errorf("keyservice: frame %s: %w", name, err)
	}

	now := time.Now().UTC()
	events := make([]index.EventRow, 0, len(transitions))
	for _, tr := range transitions {
		events = append(events, index.EventRow{
			CalibrationID: s.calibration.ID,
			Code:          tr.Code,
			Name:          tr.Name,
			Pressed:       tr.Pressed,
			Distance:      tr.Distance,
			At:            now,
		})
	}
	if err := s.db.RecordFrame(index.FrameRow{
		Name:        name,
		Checksum:    sum,
		Transitions: len(transitions),
		ProcessedAt: now,
	}, events); err != nil {
		return nil, err
	}
	if err := s.tracker.Commit(transitions); err != nil {
		return nil, fmt.Errorf("keyservice: frame %s: %w", name, err)
	}

	for _, tr := range transitions {
		s.recorder.Record(tr.Code, tr.Pressed)
		kind := sse.TypeKeyReleased
		if tr.Pressed {
			kind = sse.TypeKeyPressed
		}
		s.pub.PublishKeyEvent(kind, tr)
	}
	s.logger.Debug("process: frame processed",
		slog.String("name", name),
		slog.Int("transitions", len(transitions)))

	res.Transitions = transitions
	return res, nil
}

// Sync processes every frame on disk that has not been processed with its
// current content, in name order, and forgets frames that no longer exist.
func (s *Service) Sync(ctx context.Context) error {
	metas, err := s.store.List()
	if err != nil {
		return err
	}
	checksums, err := s.db.FrameChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Name] = struct{}{}
	}
	for name := range checksums {
		if _, ok := disk[name]; !ok {
			if err := s.db.DeleteFrame(name); err != nil {
				s.logger.Warn("sync: forget failed", slog.String("name", name), slog.String("error", err.Error()))
			} else {
				s.logger.Debug("sync: forgot stale frame", slog.String("name", name))
			}
		}
	}

	s.mu.Lock()
	calibrated := s.tracker != nil
	s.mu.Unlock()
	if !calibrated {
		return apperr.ErrNotCalibrated
	}

	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return err
		}
		if checksums[m.Name] == m.Checksum {
			continue
		}
		if _, err := s.ProcessFrame(ctx, m.Name); err != nil {
			s.logger.Warn("sync: process failed", slog.String("name", m.Name), slog.String("error", err.Error()))
		}
	}
	return nil
}

// HandleFrameEvent reacts to watcher notifications.
func (s *Service) HandleFrameEvent(ctx context.Context, kind, name string) {
	switch kind {
	case frames.EventWritten:
		res, err := s.ProcessFrame(ctx, name)
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, apperr.ErrNotCalibrated) {
				level = slog.LevelDebug
			}
			s.logger.Log(ctx, level, "watcher: process failed", slog.String("name", name), slog.String("error", err.Error()))
			return
		}
		if !res.Skipped {
			s.logger.Debug("watcher: processed", slog.String("name", name), slog.Int("transitions", len(res.Transitions)))
		}
	case frames.EventRemoved:
		if err := s.db.DeleteFrame(name); err != nil {
			s.logger.Warn("watcher: forget failed", slog.String("name", name), slog.String("error", err.Error()))
		}
	}
}

// ListFrames returns the frames on disk.
func (s *Service) ListFrames(_ context.Context) ([]models.FrameMetadata, error) {
	metas, err := s.store.List()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(metas), nil
}

// DeleteFrame removes a frame from disk and from the index.
func (s *Service) DeleteFrame(_ context.Context, name string) error {
	if err := s.store.Delete(name); err != nil {
		return err
	}
	return s.db.DeleteFrame(name)
}

// Events returns persisted key transitions, newest first.
func (s *Service) Events(_ context.Context, filter index.EventFilter) ([]models.KeyEvent, int, error) {
	rows, total, err := s.db.ListEvents(filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.KeyEvent, len(rows))
	for i, r := range rows {
		out[i] = models.KeyEvent{
			ID:            r.ID,
			CalibrationID: r.CalibrationID,
			Frame:         r.Frame,
			Code:          r.Code,
			Name:          r.Name,
			Pressed:       r.Pressed,
			Distance:      r.Distance,
			At:            r.At,
		}
	}
	return out, total, nil
}

// WriteRecording renders the MIDI recording to w.
func (s *Service) WriteRecording(w io.Writer) (int64, error) {
	return s.recorder.WriteTo(w)
}

// SaveRecording writes the MIDI recording to path.
func (s *Service) SaveRecording(path string) error {
	return s.recorder.WriteFile(path)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
