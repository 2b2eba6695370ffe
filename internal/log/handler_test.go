package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/ErlanBelekov/longrun-driver/internal/ctxid"
	ctxlog "github.com/ErlanBelekov/longrun-driver/internal/log"
)

func TestContextHandler_AddsCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ctxlog.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := ctxid.WithRunID(context.Background(), "run-1")
	ctx = ctxid.WithRequestID(ctx, "req-1")
	logger.InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["run_id"] != "run-1" {
		t.Errorf("expected run_id run-1, got %v", rec["run_id"])
	}
	if rec["request_id"] != "req-1" {
		t.Errorf("expected request_id req-1, got %v", rec["request_id"])
	}
}

func TestContextHandler_OmitsMissingIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ctxlog.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if _, ok := rec["run_id"]; ok {
		t.Error("run_id must be absent without a run in context")
	}
}
