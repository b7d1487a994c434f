package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/billscan/internal/acquisition"
	"github.com/zombor/billscan/internal/table"
)

func jpegBytes() []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2)), nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		ollama  *Ollama
		records []table.Record
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		ollama, err = NewOllama(server.URL(), "llava", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		records, err = ollama.Extract(context.Background(), []acquisition.Image{
			{Name: "a.jpg", ContentType: "image/jpeg", Data: jpegBytes()},
		})
	})

	When("the model answers with records", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/chat"),
				func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					var req ollamaChatRequest
					Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
					Expect(req.Model).To(Equal("llava"))
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(HaveLen(1))

					data, decodeErr := base64.StdEncoding.DecodeString(req.Messages[1].Images[0])
					Expect(decodeErr).NotTo(HaveOccurred())
					_, pngErr := png.Decode(bytes.NewReader(data))
					Expect(pngErr).NotTo(HaveOccurred())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message": map[string]string{"role": "assistant", "content": "```json\n[{\"vendor\":\"Corner Shop\",\"item\":\"Bread\"}]\n```"},
					"done":    true,
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the parsed records", func() {
			Expect(records).To(HaveLen(1))
			Expect(records[0].Value("vendor")).To(Equal("Corner Shop"))
		})
	})

	When("the API fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `model not found`))
		})

		It("returns a ServiceError", func() {
			Expect(Message(err)).To(ContainSubstring("status 404"))
		})
	})
})
