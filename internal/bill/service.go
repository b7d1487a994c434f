package bill

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/billscan/internal/acquisition"
	"github.com/zombor/billscan/internal/scanning"
	"github.com/zombor/billscan/internal/table"
)

// ErrSubmissionInFlight is returned when a submission is already running
var ErrSubmissionInFlight = errors.New("a submission is already in progress")

// IDGenerator generates unique IDs for submissions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service owns the review session: the image queue, the camera, the extracted
// dataset and the edit in progress
type Service struct {
	mu          sync.Mutex
	state       State
	queue       *acquisition.Queue
	camera      *acquisition.Camera
	extractor   scanning.Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(extractor scanning.Extractor, queue *acquisition.Queue, camera *acquisition.Camera) *Service {
	return NewServiceWithDeps(extractor, queue, camera, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(extractor scanning.Extractor, queue *acquisition.Queue, camera *acquisition.Camera, idGen IDGenerator, timeSrc TimeSource) *Service {
	if queue == nil {
		queue = acquisition.NewQueue()
	}
	if camera == nil {
		camera = acquisition.NewCamera(nil)
	}
	return &Service{
		state:       State{Status: StatusIdle},
		queue:       queue,
		camera:      camera,
		extractor:   extractor,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// State returns the current state
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns the current state rendered for the UI
func (s *Service) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Service) viewLocked() View {
	return newView(s.state, s.queue.Images(), s.camera.Active())
}

// SelectImages replaces the queue with a new selection of files
func (s *Service) SelectImages(images []acquisition.Image) View {
	s.queue.Replace(images...)
	return s.View()
}

// AppendImages adds files to the end of the queue
func (s *Service) AppendImages(images []acquisition.Image) View {
	for _, img := range images {
		s.queue.Enqueue(img)
	}
	return s.View()
}

// ClearQueue empties the queue
func (s *Service) ClearQueue() View {
	s.queue.Clear()
	return s.View()
}

// StartCamera opens the camera. A refused camera is reported through the status message.
func (s *Service) StartCamera(ctx context.Context) (View, error) {
	err := s.camera.Start(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = s.state.withMessage(acquisition.ErrAcquisitionDenied.Error())
		return s.viewLocked(), err
	}
	s.state = s.state.withMessage("")
	return s.viewLocked(), nil
}

// CapturePhoto takes a photo with the camera and queues it
func (s *Service) CapturePhoto(ctx context.Context) (View, error) {
	photo, err := s.camera.Capture(ctx)
	if err != nil {
		slog.Warn("Failed to capture photo", "error", err)
		return s.View(), err
	}
	s.queue.Enqueue(photo)
	slog.Info("Captured photo", "name", photo.Name, "size", len(photo.Data))
	return s.View(), nil
}

// AddFrame queues a frame captured by the browser camera as a JPEG photo
func (s *Service) AddFrame(frame image.Image) (View, error) {
	photo, err := acquisition.EncodeCapture(frame, s.timeSource.Now())
	if err != nil {
		return s.View(), err
	}
	s.queue.Enqueue(photo)
	return s.View(), nil
}

// StopCamera releases the camera
func (s *Service) StopCamera() View {
	s.camera.Stop()
	return s.View()
}

// Submit sends every queued image to the extractor and replaces the dataset with the
// result. Extraction failures end up in the Failed status, never in the returned error;
// the only error is ErrSubmissionInFlight.
func (s *Service) Submit(ctx context.Context) (View, error) {
	s.mu.Lock()
	if s.state.Status == StatusSubmitting {
		s.mu.Unlock()
		return s.View(), ErrSubmissionInFlight
	}
	images := s.queue.Images()
	if len(images) == 0 {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}
	id := s.idGenerator.Generate()
	s.state = s.state.submitting(id)
	s.mu.Unlock()

	slog.Info("Submitting images", "submission_id", id, "count", len(images))
	start := s.timeSource.Now()

	records, err := s.extract(ctx, images)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		slog.Error("Failed to extract records",
			"submission_id", id,
			"images", len(images),
			"error", err,
		)
		s.state = s.state.failed(scanning.Message(err))
		return s.viewLocked(), nil
	}

	s.state = s.state.succeeded(table.NewDataset(records))
	slog.Info("Extracted records",
		"submission_id", id,
		"records", len(records),
		"duration", s.timeSource.Now().Sub(start),
	)
	return s.viewLocked(), nil
}

func (s *Service) extract(ctx context.Context, images []acquisition.Image) (records []table.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panicked: %v", r)
		}
	}()
	return s.extractor.Extract(ctx, images)
}

// BeginEdit starts editing the cell at (row, col) with its current value
func (s *Service) BeginEdit(row, col int) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Data == nil {
		return s.viewLocked()
	}
	current := s.state.Data.Cell(row, col)
	s.state = s.state.withData(s.state.Data, s.state.Edit.Begin(row, col, current))
	return s.viewLocked()
}

// UpdateEdit replaces the pending value of the edit in progress
func (s *Service) UpdateEdit(text string) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.state.withData(s.state.Data, s.state.Edit.Update(text))
	return s.viewLocked()
}

// CommitEdit writes the pending value into the dataset
func (s *Service) CommitEdit() View {
	return s.Signal(table.SignalAccept)
}

// CancelEdit discards the pending value
func (s *Service) CancelEdit() View {
	return s.Signal(table.SignalCancel)
}

// Signal applies an input signal to the edit in progress
func (s *Service) Signal(sig table.Signal) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	edit, data := s.state.Edit.Handle(sig, s.state.Data)
	s.state = s.state.withData(data, edit)
	return s.viewLocked()
}

// AddRow appends an empty row matching the current headers
func (s *Service) AddRow() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.state.withData(s.state.Data.AddRow(), s.state.Edit)
	return s.viewLocked()
}

// DeleteRow removes the row at index
func (s *Service) DeleteRow(index int) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.state.withData(s.state.Data.DeleteRow(index), s.state.Edit)
	return s.viewLocked()
}

// ExportDocument renders the dataset as a word-processor document
func (s *Service) ExportDocument() (table.Document, error) {
	s.mu.Lock()
	data := s.state.Data
	s.mu.Unlock()
	return table.ExportDocument(data, s.timeSource.Now())
}

// ExportWorkbook renders the dataset as a spreadsheet
func (s *Service) ExportWorkbook() (table.Document, error) {
	s.mu.Lock()
	data := s.state.Data
	s.mu.Unlock()
	return table.ExportWorkbook(data, s.timeSource.Now())
}

// Close releases the camera and the extractor
func (s *Service) Close() error {
	s.camera.Stop()
	if s.extractor == nil {
		return nil
	}
	return s.extractor.Close()
}
