// Package loki pushes auth telemetry lines to Grafana Loki's HTTP push API.
// Used by the worker-side Kafka relay.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// jobLabel identifies this stream in Loki.
const jobLabel = "stocktrack-auth"

// PushRequest is the Loki push API (v1) request body.
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream carries one label set and its log entries. Each value is a
// [timestamp_ns, line] pair.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// Loki label names must match [a-zA-Z_:][a-zA-Z0-9_:]*; values are freer but
// problematic characters are replaced anyway.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// eventFields picks out the telemetry-event fields used for labels and the
// entry timestamp.
type eventFields struct {
	UserID    string `json:"userId"`
	EventType string `json:"eventType"`
	Source    string `json:"source"`
	CreatedAt string `json:"createdAt"`
}

// PushEventJSON pushes one relayed event (a Kafka message value). Labels and
// timestamp come from the event JSON when it parses; an unparseable line is
// still pushed, stamped with the current time and only the job label.
func PushEventJSON(ctx context.Context, baseURL string, rawJSON []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var fields eventFields
	if err := json.Unmarshal(rawJSON, &fields); err == nil {
		if fields.UserID != "" {
			labels["user_id"] = fields.UserID
		}
		if fields.EventType != "" {
			labels["event_type"] = fields.EventType
		}
		if fields.Source != "" {
			labels["source"] = fields.Source
		}
		if t, err := time.Parse(time.RFC3339Nano, fields.CreatedAt); err == nil {
			ts = t
		}
	}
	return PushEvent(ctx, baseURL, ts, string(rawJSON), labels)
}

// PushEvent sends one log line to Loki at baseURL (e.g. http://localhost:3100).
// Label values are sanitized; empty values are dropped. Non-2xx responses are
// errors.
func PushEvent(ctx context.Context, baseURL string, timestamp time.Time, line string, labels map[string]string) error {
	if baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}

	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = jobLabel
	for k, v := range labels {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			streamLabels[k] = s
		}
	}
	payload, err := json.Marshal(PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{strconv.FormatInt(timestamp.UnixNano(), 10), line}},
		}},
	})
	if err != nil {
		return err
	}

	url := strings.TrimSuffix(baseURL, "/") + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
