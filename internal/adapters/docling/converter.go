// Package docling adapts the external document-conversion engine. The engine
// runs as a sidecar (docling-serve) and is treated as opaque: raw PDF bytes
// in, structured markdown plus extracted images out.
package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"time"

	"pdf2md/internal/core/domain"
	"pdf2md/internal/core/ports"
)

// EngineConfig is the fixed, process-wide execution profile of the engine.
// Thread count and image scale are configuration constants, not per-request
// parameters, so conversion output stays reproducible and resource usage
// bounded.
type EngineConfig struct {
	URL        string
	Threads    int
	ImageScale float64
	Timeout    time.Duration
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.Threads <= 0 {
		c.Threads = 4
	}
	if c.ImageScale <= 0 {
		c.ImageScale = 2.0
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	return c
}

// engineAssetPattern matches markdown image references pointing into the
// engine's internal asset directory. The engine emits absolute, filesystem
// specific paths; only the final segment (the filename) is meaningful to us.
var engineAssetPattern = regexp.MustCompile(`\]\(([^)]*output_artifacts/[^)]+)\)`)

type Converter struct {
	logger *slog.Logger
	store  ports.ArtifactStore
	cfg    EngineConfig
	client *http.Client
}

var _ ports.Converter = (*Converter)(nil)

func NewConverter(logger *slog.Logger, store ports.ArtifactStore, cfg EngineConfig) *Converter {
	cfg = cfg.withDefaults()
	return &Converter{
		logger: logger,
		store:  store,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type convertRequest struct {
	Filename string `json:"filename"`
	Document []byte `json:"document"` // base64 over the wire
	Options  struct {
		NumThreads    int     `json:"num_threads"`
		ImageScale    float64 `json:"image_scale"`
		PictureImages bool    `json:"picture_images"`
	} `json:"options"`
}

type convertResponse struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
	Images   []struct {
		Name string `json:"name"`
		Data []byte `json:"data"`
	} `json:"images"`
	Error string `json:"error,omitempty"`
}

// Convert sends the document to the engine, rewrites embedded asset
// references to the externally addressable /assets/{taskID}/{filename}
// scheme, and persists markdown and assets through the artifact store.
//
// Engine failures come back as *domain.ConversionError; storage failures
// propagate as plain errors. Both are terminal for the task.
func (c *Converter) Convert(ctx context.Context, id domain.TaskID, document []byte) (domain.ConversionResult, error) {
	resp, err := c.callEngine(ctx, document)
	if err != nil {
		return domain.ConversionResult{}, err
	}

	title := resp.Title
	if title == "" {
		title = domain.DefaultTitle
	}

	markdown := engineAssetPattern.ReplaceAllStringFunc(resp.Markdown, func(match string) string {
		sub := engineAssetPattern.FindStringSubmatch(match)
		return fmt.Sprintf("](/assets/%s/%s)", id, path.Base(sub[1]))
	})

	dir, err := c.store.EnsureTaskDir(id)
	if err != nil {
		return domain.ConversionResult{}, err
	}
	for _, img := range resp.Images {
		if err := c.store.WriteAsset(id, path.Base(img.Name), img.Data); err != nil {
			return domain.ConversionResult{}, err
		}
	}
	if err := c.store.WriteMarkdown(id, markdown); err != nil {
		return domain.ConversionResult{}, err
	}

	c.logger.Info("document converted", "task_id", id, "title", title, "assets", len(resp.Images))
	return domain.ConversionResult{
		Title:      title,
		OutputPath: dir,
		AssetCount: len(resp.Images),
	}, nil
}

func (c *Converter) callEngine(ctx context.Context, document []byte) (*convertResponse, error) {
	reqBody := convertRequest{
		Filename: "document.pdf",
		Document: document,
	}
	reqBody.Options.NumThreads = c.cfg.Threads
	reqBody.Options.ImageScale = c.cfg.ImageScale
	reqBody.Options.PictureImages = true

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode engine request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/v1/convert", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.ConversionError{Message: fmt.Sprintf("engine unreachable: %v", err)}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &domain.ConversionError{Message: fmt.Sprintf("engine response unreadable: %v", err)}
	}

	var resp convertResponse
	if httpResp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &resp) == nil && resp.Error != "" {
			return nil, &domain.ConversionError{Message: resp.Error}
		}
		return nil, &domain.ConversionError{Message: fmt.Sprintf("engine returned status %d", httpResp.StatusCode)}
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.ConversionError{Message: fmt.Sprintf("engine response malformed: %v", err)}
	}
	return &resp, nil
}

// Sniff reports whether the bytes look like a PDF document.
func (c *Converter) Sniff(document []byte) bool {
	return bytes.HasPrefix(document, []byte("%PDF-"))
}
