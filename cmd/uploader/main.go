// Command uploader pushes a local file through the media pipeline from the
// command line: it requests an upload slot, PUTs the bytes into object
// storage, asks for processing, and waits until the asset is playable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"chapelcast/internal/uploader"
)

func main() {
	serverURL := flag.String("server", "", "media API base URL (e.g. https://media.gracechapel.example)")
	contentType := flag.String("content-type", "", "MIME type of the file; derived from the extension when empty")
	pollInterval := flag.Duration("poll-interval", 3*time.Second, "delay between status polls")
	timeout := flag.Duration("timeout", 30*time.Minute, "maximum time to wait for processing")
	noWait := flag.Bool("no-wait", false, "exit once processing is confirmed instead of waiting for a playable asset")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: uploader -server <url> [flags] <file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	baseURL := strings.TrimSpace(*serverURL)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv("CHAPELCAST_SERVER"))
	}
	if baseURL == "" {
		logger.Error("server URL required", "hint", "set --server or CHAPELCAST_SERVER")
		os.Exit(1)
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Error("failed to open file", "error", err)
		os.Exit(1)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		logger.Error("failed to stat file", "error", err)
		os.Exit(1)
	}

	mimeType := strings.TrimSpace(*contentType)
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(path))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	client, err := uploader.New(uploader.Config{
		BaseURL:      baseURL,
		PollInterval: *pollInterval,
		PollTimeout:  *timeout,
		WaitForReady: !*noWait,
		OnProgress: func(p uploader.Progress) {
			attrs := []any{"state", string(p.State), "percent", p.Percent}
			if p.AssetID != "" {
				attrs = append(attrs, "asset_id", p.AssetID)
			}
			if p.Message != "" {
				attrs = append(attrs, "detail", p.Message)
			}
			logger.Info("upload progress", attrs...)
		},
	})
	if err != nil {
		logger.Error("failed to initialise uploader", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := client.Upload(ctx, filepath.Base(path), mimeType, file, info.Size())
	if err != nil {
		logger.Error("upload failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("asset: %s\n", result.AssetID)
	fmt.Printf("status: %s\n", result.Status)
	if result.ProviderAssetID != "" {
		fmt.Printf("provider asset: %s\n", result.ProviderAssetID)
	}
	if result.HLSURL != "" {
		fmt.Printf("stream: %s\n", result.HLSURL)
	}
	if result.ThumbnailURL != "" {
		fmt.Printf("thumbnail: %s\n", result.ThumbnailURL)
	}
	if result.PublicURL != "" {
		fmt.Printf("url: %s\n", result.PublicURL)
	}
}
