package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/billscan/internal/acquisition"
	"github.com/zombor/billscan/internal/bill"
	"github.com/zombor/billscan/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("billscan")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		extractorType = fs.StringLong("extractor", "remote", "Extractor type: 'remote', 'gemini' or 'ollama'")
		ocrURL        = fs.StringLong("ocr-url", scanning.DefaultRemoteURL, "OCR service endpoint used by the remote extractor")
		ocrTimeout    = fs.DurationLong("ocr-timeout", 2*time.Minute, "Timeout for a single extraction request")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		cameraURL     = fs.StringLong("camera-url", "", "Snapshot URL of a network camera (optional)")
		maxUploadMB   = fs.IntLong("max-upload-mb", 50, "Largest upload accepted when queueing images, in MB")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILLSCAN"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize extractor based on type
	var (
		extractor scanning.Extractor
		err       error
	)
	switch *extractorType {
	case "remote":
		slog.Info("Initializing remote OCR extractor...", "url", *ocrURL)
		extractor, err = scanning.NewRemote(*ocrURL, *ocrTimeout)
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = scanning.NewGemini(apiKey, *geminiModel, *ocrTimeout)
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = scanning.NewOllama(*ollamaURL, *ollamaModel, *ocrTimeout)
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "remote, gemini or ollama")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize extractor", "type", *extractorType, "error", err)
		os.Exit(1)
	}

	// Preload images named on the command line
	queue := acquisition.NewQueue()
	for _, path := range fs.GetArgs() {
		img, err := acquisition.LoadFile(path)
		if err != nil {
			slog.Error("Failed to load image", "path", path, "error", err)
			os.Exit(1)
		}
		queue.Enqueue(img)
		slog.Info("Queued image", "name", img.Name, "size", len(img.Data))
	}

	var device acquisition.Device
	if *cameraURL != "" {
		slog.Info("Using network camera", "url", *cameraURL)
		device = acquisition.NewSnapshotDevice(*cameraURL)
	}

	service := bill.NewService(extractor, queue, acquisition.NewCamera(device))
	defer func() {
		if err := service.Close(); err != nil {
			slog.Warn("Failed to close service", "error", err)
		}
	}()

	server := bill.NewServer(service, int64(*maxUploadMB)<<20)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			slog.Error("Server error", "error", err)
			service.Close()
			os.Exit(1)
		}
		return
	case <-sigChan:
	}

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}
}
