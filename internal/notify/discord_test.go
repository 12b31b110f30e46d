package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleDigest(lines int) Digest {
	d := Digest{Batches: 2, Domains: lines, Blocked: 1, NotBlocked: 1, Errors: 0}
	for i := 0; i < lines; i++ {
		d.Lines = append(d.Lines, Line{
			Timestamp: int64(1700000000000 + i),
			ClientID:  "1.2.3.4",
			Domain:    "example.com",
			Status:    "Not Blocked",
			Flag:      FlagNotBlocked,
		})
	}
	return d
}

func TestSeverityColor(t *testing.T) {
	require.Equal(t, colorWarning, severityColor(1, 5))
	require.Equal(t, colorAlert, severityColor(0, 5))
	require.Equal(t, colorSuccess, severityColor(0, 0))
}

func TestBuildCSV(t *testing.T) {
	csv := buildCSV([]Line{
		{Timestamp: 1700000000000, ClientID: "1.2.3.4", Domain: "a.com", Status: "Blocked", Flag: FlagBlocked},
		{Timestamp: 1700000000001, ClientID: "5.6.7.8", Domain: "b.com", Status: "Error: API request failed", Flag: FlagError},
	})

	rows := strings.Split(csv, "\n")
	require.Equal(t, "timestamp,ip,domain,status,flag", rows[0])
	require.Equal(t, "1700000000000,1.2.3.4,a.com,Blocked,BLOCKED", rows[1])
	require.Equal(t, "1700000000001,5.6.7.8,b.com,Error: API request failed,ERROR", rows[2])
}

func TestSendDigestInline(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(Config{URL: srv.URL, InlineLimit: 5}, zap.NewNop())
	require.NoError(t, w.SendDigest(context.Background(), sampleDigest(2)))
	require.Equal(t, "application/json", gotContentType)

	var msg message
	require.NoError(t, json.Unmarshal(gotBody, &msg))
	require.Len(t, msg.Embeds, 1)
	require.Equal(t, "Domain Check Batch Summary", msg.Embeds[0].Title)
	require.Equal(t, colorAlert, msg.Embeds[0].Color)
	// Three summary fields plus one per line.
	require.Len(t, msg.Embeds[0].Fields, 5)
}

func TestSendDigestAttachment(t *testing.T) {
	var payloadJSON, fileName, fileContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		payloadJSON = r.FormValue("payload_json")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		fileName = header.Filename
		data, _ := io.ReadAll(file)
		fileContent = string(data)

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(Config{URL: srv.URL, InlineLimit: 5}, zap.NewNop())
	require.NoError(t, w.SendDigest(context.Background(), sampleDigest(8)))

	var msg message
	require.NoError(t, json.Unmarshal([]byte(payloadJSON), &msg))
	require.Contains(t, msg.Content, "8 domains in 2 batches")
	require.Len(t, msg.Embeds, 1)
	// Lines ride in the attachment, not the embed.
	require.Len(t, msg.Embeds[0].Fields, 3)

	require.Equal(t, attachmentName, fileName)
	rows := strings.Split(fileContent, "\n")
	require.Equal(t, "timestamp,ip,domain,status,flag", rows[0])
	require.Len(t, rows, 9)
}

func TestSendDigestRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	w := NewWebhook(Config{URL: srv.URL}, zap.NewNop())
	require.Error(t, w.SendDigest(context.Background(), sampleDigest(1)))
}
