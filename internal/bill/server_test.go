package bill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/vmihailenco/msgpack/v5"
)

type upload struct {
	name        string
	contentType string
	data        []byte
}

func multipartBody(mode string, files ...upload) (io.Reader, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, f.name))
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(f.data)
		Expect(err).NotTo(HaveOccurred())
	}
	if mode != "" {
		Expect(mw.WriteField("mode", mode)).To(Succeed())
	}
	Expect(mw.Close()).To(Succeed())
	return &buf, mw.FormDataContentType()
}

func jsonBody(v any) io.Reader {
	data, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	return bytes.NewReader(data)
}

var _ = Describe("Server", func() {
	var (
		extractor   *mockExtractor
		service     *Service
		server      *Server
		ghttpServer *ghttp.Server
	)

	do := func(method, path string, body io.Reader, contentType string) (*http.Response, []byte) {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, data
	}

	decodeView := func(data []byte) View {
		var view View
		Expect(json.Unmarshal(data, &view)).To(Succeed())
		return view
	}

	errorOf := func(data []byte) string {
		var body map[string]string
		Expect(json.Unmarshal(data, &body)).To(Succeed())
		return body["error"]
	}

	queueAndProcess := func() {
		body, contentType := multipartBody("", upload{name: "bill.jpg", contentType: "image/jpeg", data: []byte("jpeg")})
		resp, _ := do("POST", "/api/queue", body, contentType)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		resp, _ = do("POST", "/api/process", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	}

	BeforeEach(func() {
		extractor = newMockExtractor()
		extractor.records = testRecords()
		service = NewServiceWithDeps(extractor, nil, nil, &mockIDGenerator{id: "test-id"}, &mockTimeSource{now: testNow})
		server = NewServerWithMux(service, 1<<20, http.NewServeMux())

		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(".*"), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	Describe("handleIndex", func() {
		It("should return HTML containing BillScan", func() {
			resp, body := do("GET", "/", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/html"))
			Expect(string(body)).To(ContainSubstring("BillScan"))
		})

		It("should reject other methods", func() {
			resp, _ := do("POST", "/", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		})

		It("should serve the static assets", func() {
			resp, _ := do("GET", "/static/app.js", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/javascript"))

			resp, _ = do("GET", "/static/app.css", nil, "")
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/css"))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp, _ := do("OPTIONS", "/api/process", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("handleState", func() {
		It("should return the idle state as JSON", func() {
			resp, body := do("GET", "/api/state", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			view := decodeView(body)
			Expect(view.Status).To(Equal(StatusIdle))
			Expect(view.HasData).To(BeFalse())
			Expect(view.Headers).To(BeEmpty())
		})

		It("should return msgpack when asked", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/state", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Accept", "application/msgpack")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/msgpack"))

			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			var decoded map[string]any
			Expect(msgpack.Unmarshal(data, &decoded)).To(Succeed())
			Expect(decoded["status"]).To(Equal("idle"))
			Expect(decoded["camera_active"]).To(Equal(false))
		})
	})

	Describe("handleQueueImages", func() {
		It("should replace the queue with the uploaded files", func() {
			body, contentType := multipartBody("",
				upload{name: "a.jpg", contentType: "image/jpeg", data: []byte("one")},
				upload{name: "b.png", data: []byte("two")},
			)
			resp, data := do("POST", "/api/queue", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			view := decodeView(data)
			Expect(view.Queue).To(Equal([]QueuedImage{
				{Name: "a.jpg", ContentType: "image/jpeg", Size: 3},
				{Name: "b.png", ContentType: "image/png", Size: 3},
			}))

			body, contentType = multipartBody("replace", upload{name: "c.pdf", data: []byte("pdf")})
			_, data = do("POST", "/api/queue", body, contentType)
			Expect(decodeView(data).Queue).To(HaveLen(1))
		})

		It("should append when asked", func() {
			body, contentType := multipartBody("", upload{name: "a.jpg", data: []byte("one")})
			do("POST", "/api/queue", body, contentType)
			body, contentType = multipartBody("append", upload{name: "b.jpg", data: []byte("two")})
			_, data := do("POST", "/api/queue", body, contentType)
			Expect(decodeView(data).Queue).To(HaveLen(2))
		})

		It("should reject unsupported files", func() {
			body, contentType := multipartBody("", upload{name: "notes.txt", contentType: "text/plain", data: []byte("hi")})
			resp, data := do("POST", "/api/queue", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorOf(data)).To(ContainSubstring("unsupported format"))
			Expect(service.View().Queue).To(BeEmpty())
		})

		It("should reject a form without files", func() {
			body, contentType := multipartBody("append")
			resp, data := do("POST", "/api/queue", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorOf(data)).To(ContainSubstring("No file was selected"))
		})

		It("should reject a body that is not multipart", func() {
			resp, _ := do("POST", "/api/queue", strings.NewReader("{}"), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should remove spilled upload files once queued", func() {
			tmp := GinkgoT().TempDir()
			GinkgoT().Setenv("TMPDIR", tmp)
			server.formMemory = 1024

			body, contentType := multipartBody("", upload{name: "big.jpg", contentType: "image/jpeg", data: bytes.Repeat([]byte("x"), 64<<10)})
			resp, data := do("POST", "/api/queue", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decodeView(data).Queue).To(Equal([]QueuedImage{{Name: "big.jpg", ContentType: "image/jpeg", Size: 64 << 10}}))

			Eventually(func() ([]os.DirEntry, error) { return os.ReadDir(tmp) }).Should(BeEmpty())
		})

		It("should clear the queue", func() {
			body, contentType := multipartBody("", upload{name: "a.jpg", data: []byte("one")})
			do("POST", "/api/queue", body, contentType)
			resp, data := do("DELETE", "/api/queue", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decodeView(data).Queue).To(BeEmpty())
		})
	})

	Describe("handleProcess", func() {
		It("should return the extracted table", func() {
			body, contentType := multipartBody("", upload{name: "bill.jpg", data: []byte("jpeg")})
			do("POST", "/api/queue", body, contentType)

			resp, data := do("POST", "/api/process", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			view := decodeView(data)
			Expect(view.Status).To(Equal(StatusSucceeded))
			Expect(view.Labels).To(Equal([]string{"Shop Name", "Item", "Price"}))
			Expect(view.Rows).To(HaveLen(2))
		})

		It("should report extraction failures in the state", func() {
			extractor.records = nil
			extractor.err = fmt.Errorf("calling OCR service: connection refused")
			body, contentType := multipartBody("", upload{name: "bill.jpg", data: []byte("jpeg")})
			do("POST", "/api/queue", body, contentType)

			resp, data := do("POST", "/api/process", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			view := decodeView(data)
			Expect(view.Status).To(Equal(StatusFailed))
			Expect(view.Message).To(Equal("calling OCR service: connection refused"))
		})
	})

	Describe("editing", func() {
		BeforeEach(func() {
			queueAndProcess()
		})

		It("should commit on Enter", func() {
			_, data := do("POST", "/api/edit", jsonBody(map[string]int{"row": 0, "col": 1}), "application/json")
			Expect(decodeView(data).Editing.Pending).To(Equal("Bread"))

			do("PUT", "/api/edit", jsonBody(map[string]string{"pending": "Rye Bread"}), "application/json")
			_, data = do("POST", "/api/edit/key", jsonBody(map[string]string{"key": "Enter"}), "application/json")
			view := decodeView(data)
			Expect(view.Editing).To(BeNil())
			Expect(view.Rows[0][1]).To(Equal("Rye Bread"))
		})

		It("should discard on Escape", func() {
			do("POST", "/api/edit", jsonBody(map[string]int{"row": 0, "col": 1}), "application/json")
			do("PUT", "/api/edit", jsonBody(map[string]string{"pending": "Rye Bread"}), "application/json")
			_, data := do("POST", "/api/edit/key", jsonBody(map[string]string{"key": "Escape"}), "application/json")
			Expect(decodeView(data).Rows[0][1]).To(Equal("Bread"))
		})

		It("should ignore other keys", func() {
			do("POST", "/api/edit", jsonBody(map[string]int{"row": 0, "col": 1}), "application/json")
			_, data := do("POST", "/api/edit/key", jsonBody(map[string]string{"key": "Tab"}), "application/json")
			Expect(decodeView(data).Editing).NotTo(BeNil())
		})

		It("should commit on blur and via the commit endpoint", func() {
			do("POST", "/api/edit", jsonBody(map[string]int{"row": 1, "col": 2}), "application/json")
			do("PUT", "/api/edit", jsonBody(map[string]string{"pending": "3.00"}), "application/json")
			_, data := do("POST", "/api/edit/blur", nil, "")
			Expect(decodeView(data).Rows[1][2]).To(Equal("3.00"))

			do("POST", "/api/edit", jsonBody(map[string]int{"row": 1, "col": 2}), "application/json")
			do("PUT", "/api/edit", jsonBody(map[string]string{"pending": "4.00"}), "application/json")
			_, data = do("POST", "/api/edit/commit", nil, "")
			Expect(decodeView(data).Rows[1][2]).To(Equal("4.00"))
		})

		It("should cancel via the cancel endpoint", func() {
			do("POST", "/api/edit", jsonBody(map[string]int{"row": 1, "col": 2}), "application/json")
			_, data := do("POST", "/api/edit/cancel", nil, "")
			Expect(decodeView(data).Editing).To(BeNil())
		})

		It("should reject invalid JSON", func() {
			resp, data := do("POST", "/api/edit", strings.NewReader("not json"), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorOf(data)).To(Equal("Invalid JSON body"))
		})
	})

	Describe("rows", func() {
		BeforeEach(func() {
			queueAndProcess()
		})

		It("should add an empty row", func() {
			_, data := do("POST", "/api/rows", nil, "")
			view := decodeView(data)
			Expect(view.Rows).To(HaveLen(3))
			Expect(view.Rows[2]).To(Equal([]string{"", "", ""}))
		})

		It("should delete a row and recompute the headers", func() {
			_, data := do("DELETE", "/api/rows/1", nil, "")
			view := decodeView(data)
			Expect(view.Headers).To(Equal([]string{"shop_name", "item"}))
			Expect(view.Rows).To(Equal([][]string{{"Corner Shop", "Bread"}}))
		})

		It("should keep every column when the deleted row was not the only one using it", func() {
			_, data := do("DELETE", "/api/rows/0", nil, "")
			view := decodeView(data)
			Expect(view.Headers).To(Equal([]string{"shop_name", "item", "price"}))
			Expect(view.Rows).To(Equal([][]string{{"Corner Shop", "Milk", "2.50"}}))
		})

		It("should reject a non-numeric index", func() {
			resp, _ := do("DELETE", "/api/rows/abc", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("export", func() {
		It("should return not found without data", func() {
			resp, data := do("GET", "/api/export", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(errorOf(data)).To(Equal("No data to export"))
		})

		When("there is data", func() {
			BeforeEach(func() {
				queueAndProcess()
			})

			It("should download the document", func() {
				resp, data := do("GET", "/api/export", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/msword"))
				Expect(resp.Header.Get("Content-Disposition")).To(Equal(`attachment; filename="table-1710928800000.doc"`))
				Expect(string(data)).To(ContainSubstring(`rowspan="2"`))
			})

			It("should download the workbook", func() {
				resp, data := do("GET", "/api/export/xlsx", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("table-1710928800000.xlsx"))
				Expect(data).To(HavePrefix("PK"))
			})
		})
	})

	Describe("camera", func() {
		It("should report a missing camera", func() {
			resp, data := do("POST", "/api/camera/start", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(errorOf(data)).To(Equal("camera access denied or not available"))
			Expect(service.View().Message).To(Equal("camera access denied or not available"))
		})

		It("should refuse to capture without a started camera", func() {
			resp, _ := do("POST", "/api/camera/capture", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should queue a browser frame", func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testFrame())).To(Succeed())
			resp, data := do("POST", "/api/camera/frame", &buf, "image/png")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			view := decodeView(data)
			Expect(view.Queue).To(HaveLen(1))
			Expect(view.Queue[0].Name).To(Equal("bill-photo-1710928800000.jpg"))
		})

		It("should reject a frame that is not an image", func() {
			resp, _ := do("POST", "/api/camera/frame", strings.NewReader("nope"), "image/png")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should stop the camera", func() {
			resp, data := do("POST", "/api/camera/stop", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decodeView(data).CameraActive).To(BeFalse())
		})
	})
})
