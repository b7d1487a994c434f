package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/zombor/billscan/internal/acquisition"
	"github.com/zombor/billscan/internal/table"
)

// DefaultRemoteURL is the hosted bill OCR endpoint
const DefaultRemoteURL = "http://bills-ocr-b.vercel.app/process-images"

// remoteFilesField is the repeated multipart field carrying the images
const remoteFilesField = "files"

// Remote implements the Extractor interface using the hosted bill OCR service
type Remote struct {
	url    string
	client *http.Client
}

// NewRemote creates a new Remote extractor
func NewRemote(url string, timeout time.Duration) (*Remote, error) {
	if url == "" {
		url = DefaultRemoteURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Remote{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type remoteResponse struct {
	Data json.RawMessage `json:"data"`
}

type remoteError struct {
	Detail json.RawMessage `json:"detail"`
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Extract posts every image as a "files" part and decodes the returned records
func (r *Remote) Extract(ctx context.Context, images []acquisition.Image) ([]table.Record, error) {
	body, contentType, err := multipartBody(images)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling OCR service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, responseError(resp, data)
	}

	var result remoteResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	records, err := table.DecodeRecords(result.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return records, nil
}

func responseError(resp *http.Response, body []byte) *ServiceError {
	statusText := strings.TrimPrefix(resp.Status, fmt.Sprintf("%d ", resp.StatusCode))
	if statusText == "" {
		statusText = http.StatusText(resp.StatusCode)
	}

	var payload remoteError
	if err := json.Unmarshal(body, &payload); err != nil {
		return &ServiceError{
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("unknown error (HTTP %d)", resp.StatusCode),
		}
	}
	var detail string
	if json.Unmarshal(payload.Detail, &detail) == nil && detail != "" {
		return &ServiceError{StatusCode: resp.StatusCode, Detail: detail}
	}
	return &ServiceError{StatusCode: resp.StatusCode, Detail: statusDetail(resp.StatusCode, statusText)}
}

func multipartBody(images []acquisition.Image) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, remoteFilesField, quoteEscaper.Replace(img.Name)))
		h.Set("Content-Type", img.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("creating part for %s: %w", img.Name, err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("writing part for %s: %w", img.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Close is a no-op for the HTTP client
func (r *Remote) Close() error {
	return nil
}
