// Package notify renders and delivers the merged check digest to a
// Discord-compatible webhook. Delivery is fire-and-forget from the gateway's
// perspective; the dispatcher owns retries.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Severity colors for the embed, worst condition first.
const (
	colorWarning = 0xEAB308 // errors present
	colorAlert   = 0xEF4444 // blocked domains present
	colorSuccess = 0x22C55E
)

const attachmentName = "domain-batch.csv"

// Flag values attached to each digest line.
const (
	FlagBlocked    = "BLOCKED"
	FlagError      = "ERROR"
	FlagNotBlocked = "NOT_BLOCKED"
)

// Line is one per-domain row of the digest.
type Line struct {
	Timestamp int64 // unix ms, batch creation time
	ClientID  string
	Domain    string
	Status    string
	Flag      string
}

// Digest is the merged content of every pending batch in one flush.
type Digest struct {
	Batches    int
	Domains    int
	Blocked    int
	NotBlocked int
	Errors     int
	Lines      []Line
}

type Config struct {
	URL string
	// InlineLimit is the largest line count rendered as embed fields;
	// above it the lines ship as a CSV attachment.
	InlineLimit int
	Timeout     time.Duration
}

type Webhook struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func NewWebhook(cfg Config, logger *zap.Logger) *Webhook {
	if cfg.InlineLimit <= 0 {
		cfg.InlineLimit = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Webhook{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds"`
}

// SendDigest posts the digest: summary embed always, per-domain lines inline
// when few, as a CSV attachment otherwise.
func (w *Webhook) SendDigest(ctx context.Context, d Digest) error {
	e := embed{
		Title:       "Domain Check Batch Summary",
		Description: fmt.Sprintf("Batches: %d, Total Domains: %d", d.Batches, d.Domains),
		Fields: []embedField{
			{Name: "Blocked", Value: strconv.Itoa(d.Blocked), Inline: true},
			{Name: "Not Blocked", Value: strconv.Itoa(d.NotBlocked), Inline: true},
			{Name: "Errors", Value: strconv.Itoa(d.Errors), Inline: true},
		},
		Color:     severityColor(d.Errors, d.Blocked),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if len(d.Lines) <= w.cfg.InlineLimit {
		for _, line := range d.Lines {
			e.Fields = append(e.Fields, embedField{Name: line.Domain, Value: line.Status})
		}
		return w.postJSON(ctx, message{Embeds: []embed{e}})
	}

	msg := message{
		Content: fmt.Sprintf("Batch domain check result for %d domains in %d batches. See attachment for details.",
			d.Domains, d.Batches),
		Embeds: []embed{e},
	}
	return w.postWithAttachment(ctx, msg, buildCSV(d.Lines))
}

func (w *Webhook) postJSON(ctx context.Context, msg message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return w.do(req)
}

func (w *Webhook) postWithAttachment(ctx context.Context, msg message, csv string) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal webhook message: %w", err)
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := form.WriteField("payload_json", string(payload)); err != nil {
		return fmt.Errorf("write payload_json part: %w", err)
	}
	part, err := form.CreateFormFile("file", attachmentName)
	if err != nil {
		return fmt.Errorf("create attachment part: %w", err)
	}
	if _, err := part.Write([]byte(csv)); err != nil {
		return fmt.Errorf("write attachment: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, &buf)
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	return w.do(req)
}

func (w *Webhook) do(req *http.Request) error {
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected: %s", resp.Status)
	}

	w.logger.Debug("webhook delivered", zap.Int("status", resp.StatusCode))
	return nil
}

func severityColor(errors, blocked int) int {
	switch {
	case errors > 0:
		return colorWarning
	case blocked > 0:
		return colorAlert
	default:
		return colorSuccess
	}
}

func buildCSV(lines []Line) string {
	var b strings.Builder
	b.WriteString("timestamp,ip,domain,status,flag")
	for _, line := range lines {
		b.WriteString("\n")
		b.WriteString(strings.Join([]string{
			strconv.FormatInt(line.Timestamp, 10),
			line.ClientID,
			line.Domain,
			line.Status,
			line.Flag,
		}, ","))
	}
	return b.String()
}
