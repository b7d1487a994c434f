package bill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/zombor/billscan/internal/acquisition"
	"github.com/zombor/billscan/internal/table"
)

const msgpackContentType = "application/msgpack"

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeView writes the view as msgpack when the client asks for it, JSON otherwise
func writeView(w http.ResponseWriter, r *http.Request, code int, view View) {
	if !strings.Contains(r.Header.Get("Accept"), msgpackContentType) {
		writeJSON(w, code, view)
		return
	}
	w.Header().Set("Content-Type", msgpackContentType)
	w.WriteHeader(code)
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(view); err != nil {
		slog.Error("Error encoding msgpack response", "error", err)
	}
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleState returns the current review state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeView(w, r, http.StatusOK, s.service.View())
}

// handleQueueImages adds uploaded files to the queue. mode=append keeps the existing
// queue, anything else replaces it.
func (s *Server) handleQueueImages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.formMemory); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload is too large. Maximum size is %dMB.", s.maxUploadBytes>>20))
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}

	images := make([]acquisition.Image, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			slog.Error("Error opening uploaded file", "error", err, "filename", header.Filename)
			writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
			return
		}

		img, err := acquisition.NewImage(header.Filename, header.Header.Get("Content-Type"), data)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", header.Filename, err))
			return
		}
		images = append(images, img)
	}

	var view View
	if r.FormValue("mode") == "append" {
		view = s.service.AppendImages(images)
	} else {
		view = s.service.SelectImages(images)
	}
	slog.Info("Queued images", "count", len(images), "queued", len(view.Queue))
	writeView(w, r, http.StatusOK, view)
}

// handleClearQueue empties the queue
func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	writeView(w, r, http.StatusOK, s.service.ClearQueue())
}

// handleCameraStart opens the server-side camera
func (s *Server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.StartCamera(r.Context())
	if err != nil {
		slog.Warn("Camera unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, view.Message)
		return
	}
	writeView(w, r, http.StatusOK, view)
}

// handleCameraCapture takes a photo with the server-side camera
func (s *Server) handleCameraCapture(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.CapturePhoto(r.Context())
	if errors.Is(err, acquisition.ErrCameraInactive) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to capture photo")
		return
	}
	writeView(w, r, http.StatusOK, view)
}

// handleCameraFrame queues a frame captured by the browser camera. The body is the raw image.
func (s *Server) handleCameraFrame(w http.ResponseWriter, r *http.Request) {
	frame, _, err := image.Decode(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err != nil {
		slog.Error("Error decoding camera frame", "error", err)
		writeError(w, http.StatusBadRequest, "Camera frame is not a PNG or JPEG image")
		return
	}
	view, err := s.service.AddFrame(frame)
	if err != nil {
		slog.Error("Error encoding camera frame", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to capture photo")
		return
	}
	writeView(w, r, http.StatusOK, view)
}

// handleCameraStop releases the server-side camera
func (s *Server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	writeView(w, r, http.StatusOK, s.service.StopCamera())
}

// handleProcess submits the queued images for extraction
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	// The submission outlives a client that navigates away.
	view, err := s.service.Submit(context.WithoutCancel(r.Context()))
	if errors.Is(err, ErrSubmissionInFlight) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeView(w, r, http.StatusOK, view)
}

type beginEditRequest struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type updateEditRequest struct {
	Pending string `json:"pending"`
}

type keyRequest struct {
	Key string `json:"key"`
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// handleEditBegin starts editing a cell
func (s *Server) handleEditBegin(w http.ResponseWriter, r *http.Request) {
	var req beginEditRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeView(w, r, http.StatusOK, s.service.BeginEdit(req.Row, req.Col))
}

// handleEditUpdate replaces the pending value
func (s *Server) handleEditUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateEditRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeView(w, r, http.StatusOK, s.service.UpdateEdit(req.Pending))
}

// handleEditCommit confirms the pending value
func (s *Server) handleEditCommit(w http.ResponseWriter, r *http.Request) {
	writeView(w, r, http.StatusOK, s.service.CommitEdit())
}

// handleEditCancel discards the pending value
func (s *Server) handleEditCancel(w http.ResponseWriter, r *http.Request) {
	writeView(w, r, http.StatusOK, s.service.CancelEdit())
}

// handleEditBlur confirms the pending value after the cell loses focus
func (s *Server) handleEditBlur(w http.ResponseWriter, r *http.Request) {
	writeView(w, r, http.StatusOK, s.service.Signal(table.SignalBlur))
}

// handleEditKey maps a key press to an edit signal. Other keys are ignored.
func (s *Server) handleEditKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sig, ok := table.SignalForKey(req.Key)
	if !ok {
		writeView(w, r, http.StatusOK, s.service.View())
		return
	}
	writeView(w, r, http.StatusOK, s.service.Signal(sig))
}

// handleAddRow appends an empty row
func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	writeView(w, r, http.StatusOK, s.service.AddRow())
}

// handleDeleteRow removes a row by index
func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Row index must be a number")
		return
	}
	writeView(w, r, http.StatusOK, s.service.DeleteRow(index))
}

// handleExportDocument downloads the table as a word-processor document
func (s *Server) handleExportDocument(w http.ResponseWriter, r *http.Request) {
	s.writeDocument(w, s.service.ExportDocument)
}

// handleExportWorkbook downloads the table as a spreadsheet
func (s *Server) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	s.writeDocument(w, s.service.ExportWorkbook)
}

func (s *Server) writeDocument(w http.ResponseWriter, export func() (table.Document, error)) {
	doc, err := export()
	if errors.Is(err, table.ErrNoData) {
		writeError(w, http.StatusNotFound, "No data to export")
		return
	}
	if err != nil {
		slog.Error("Error exporting table", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.Write(doc.Body)
}

// handleStaticCSS serves the stylesheet
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Write(appCSS)
}

// handleStaticJS serves the client script
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}
