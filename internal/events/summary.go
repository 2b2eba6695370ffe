package events

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
)

var summaryTmpl = template.Must(template.New("summary").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Name}} summary</title>
<style>body{font-family:Arial,sans-serif;margin:24px}table{border-collapse:collapse;width:100%}td,th{border:1px solid #ddd;padding:8px}th{background:#f5f5f5}tr.warn td{background:#fff4e5}</style>
</head><body>
<h2>{{.Name}} - Run Summary</h2>
<p>Artifacts folder: <code>{{.OutDir}}</code></p>
<table>
<tr><th>Time</th><th>Event</th><th>Data</th></tr>
{{range .Rows}}<tr{{if .Warn}} class="warn"{{end}}><td>{{.Time}}</td><td>{{.Name}}</td><td><pre style="margin:0;white-space:pre-wrap">{{.Data}}</pre></td></tr>
{{end}}</table>
</body></html>
`))

type summaryRow struct {
	Time string
	Name string
	Data string
	Warn bool
}

var warnEvents = map[string]bool{
	domain.EventJobFailed:             true,
	domain.EventJobDispatchDegraded:   true,
	domain.EventSessionCheckFailed:    true,
	domain.EventRecoveryStepError:     true,
	domain.EventSessionRecoveryFailed: true,
	domain.EventRunFailed:             true,
	domain.EventRunAborted:            true,
}

// RenderSummary writes a single-page HTML table of the events.
func RenderSummary(w io.Writer, name, outDir string, evs []domain.Event) error {
	rows := make([]summaryRow, len(evs))
	for i, ev := range evs {
		data, err := json.MarshalIndent(ev.Data, "", "  ")
		if err != nil {
			data = []byte(fmt.Sprintf("%v", ev.Data))
		}
		rows[i] = summaryRow{
			Time: ev.Time.Format(time.RFC3339),
			Name: ev.Name,
			Data: string(data),
			Warn: warnEvents[ev.Name],
		}
	}
	return summaryTmpl.Execute(w, struct {
		Name   string
		OutDir string
		Rows   []summaryRow
	}{name, outDir, rows})
}

// WriteSummaryFile renders the summary to outDir/summary.html.
func WriteSummaryFile(name, outDir string, evs []domain.Event) (string, error) {
	path := filepath.Join(outDir, "summary.html")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create summary: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := RenderSummary(f, name, outDir, evs); err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}
	return path, nil
}
