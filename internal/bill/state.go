package bill

import (
	"github.com/zombor/billscan/internal/acquisition"
	"github.com/zombor/billscan/internal/table"
)

// Status is the processing status of the review session
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// State is everything the review session holds. Transitions return a new State.
type State struct {
	Data         *table.Dataset
	Edit         table.EditSession
	Status       Status
	Message      string
	SubmissionID string
}

func (s State) submitting(id string) State {
	return State{Status: StatusSubmitting, SubmissionID: id}
}

func (s State) succeeded(data *table.Dataset) State {
	s.Data = data
	s.Edit = table.EditSession{}
	s.Status = StatusSucceeded
	s.Message = ""
	return s
}

func (s State) failed(message string) State {
	s.Data = nil
	s.Edit = table.EditSession{}
	s.Status = StatusFailed
	s.Message = message
	return s
}

func (s State) withData(data *table.Dataset, edit table.EditSession) State {
	s.Data = data
	s.Edit = edit
	return s
}

func (s State) withMessage(message string) State {
	s.Message = message
	return s
}

// QueuedImage describes an image waiting in the queue
type QueuedImage struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// View is the state as rendered for the UI
type View struct {
	Status       Status        `json:"status"`
	Message      string        `json:"message,omitempty"`
	SubmissionID string        `json:"submission_id,omitempty"`
	HasData      bool          `json:"has_data"`
	Headers      []string      `json:"headers"`
	Labels       []string      `json:"labels"`
	Rows         [][]string    `json:"rows"`
	Editing      *table.Edit   `json:"editing,omitempty"`
	Queue        []QueuedImage `json:"queue"`
	CameraActive bool          `json:"camera_active"`
}

func newView(s State, queue []acquisition.Image, cameraActive bool) View {
	headers := s.Data.Headers()
	v := View{
		Status:       s.Status,
		Message:      s.Message,
		SubmissionID: s.SubmissionID,
		HasData:      s.Data != nil,
		Headers:      headers,
		Labels:       table.HeaderLabels(headers),
		Rows:         s.Data.Rows(),
		Queue:        make([]QueuedImage, 0, len(queue)),
		CameraActive: cameraActive,
	}
	if edit, ok := s.Edit.Current(); ok {
		v.Editing = &edit
	}
	for _, img := range queue {
		v.Queue = append(v.Queue, QueuedImage{Name: img.Name, ContentType: img.ContentType, Size: len(img.Data)})
	}
	return v
}
