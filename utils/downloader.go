package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"proxy-bot/model"

	"golang.org/x/sync/errgroup"
)

// ErrAttachmentTooLarge is returned when an attachment exceeds the size cap.
var ErrAttachmentTooLarge = errors.New("attachment too large")

// maxParallelDownloads bounds concurrent requests for one message.
const maxParallelDownloads = 4

// Downloader fetches attachment bytes over HTTP.
type Downloader struct {
	client   *http.Client
	maxBytes int64
}

// NewDownloader returns a downloader using client, or GlobalHTTPClient when
// client is nil. A maxBytes of 0 disables the size cap.
func NewDownloader(client *http.Client, maxBytes int64) *Downloader {
	if client == nil {
		client = GlobalHTTPClient
	}
	return &Downloader{client: client, maxBytes: maxBytes}
}

// Fetch downloads every attachment in parallel. The result keeps the input
// order, filenames and content types.
func (d *Downloader) Fetch(ctx context.Context, attachments []model.Attachment) ([]model.File, error) {
	for _, a := range attachments {
		if d.maxBytes > 0 && int64(a.Size) > d.maxBytes {
			return nil, fmt.Errorf("%s (%d bytes): %w", a.Filename, a.Size, ErrAttachmentTooLarge)
		}
	}

	files := make([]model.File, len(attachments))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDownloads)
	for i, a := range attachments {
		g.Go(func() error {
			data, err := d.download(ctx, a.URL)
			if err != nil {
				return fmt.Errorf("failed to download %s: %w", a.Filename, err)
			}
			files[i] = model.File{Name: a.Filename, ContentType: a.ContentType, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (d *Downloader) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if d.maxBytes > 0 {
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return nil, ErrAttachmentTooLarge
	}
	return data, nil
}
