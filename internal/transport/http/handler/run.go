package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
	"github.com/ErlanBelekov/longrun-driver/internal/events"
	"github.com/ErlanBelekov/longrun-driver/internal/repository"
	"github.com/ErlanBelekov/longrun-driver/internal/scheduler"
	"github.com/gin-gonic/gin"
)

const defaultEventLimit = 200

type snapshotter interface {
	Snapshot() scheduler.Snapshot
}

type eventSource interface {
	RunID() string
	Events() []domain.Event
	Since(n int) []domain.Event
}

// RunHandler serves the live state of the current run. repo may be nil when
// no event store is configured.
type RunHandler struct {
	runName string
	outDir  string
	sched   snapshotter
	events  eventSource
	repo    repository.EventRepository
	logger  *slog.Logger
}

func NewRunHandler(runName, outDir string, sched snapshotter, evs eventSource, repo repository.EventRepository, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		runName: runName,
		outDir:  outDir,
		sched:   sched,
		events:  evs,
		repo:    repo,
		logger:  logger.With("component", "run_handler"),
	}
}

type statusResponse struct {
	RunID     string             `json:"run_id"`
	Name      string             `json:"name"`
	OutDir    string             `json:"out_dir"`
	Events    int                `json:"events"`
	Scheduler scheduler.Snapshot `json:"scheduler"`
}

type eventsResponse struct {
	Events []domain.Event `json:"events"`
	Next   int            `json:"next"`
}

func (h *RunHandler) Status(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, statusResponse{
		RunID:     h.events.RunID(),
		Name:      h.runName,
		OutDir:    h.outDir,
		Events:    len(h.events.Events()),
		Scheduler: h.sched.Snapshot(),
	})
}

// Events returns the events recorded after the first since. Next is the value
// to pass as since on the following poll.
func (h *RunHandler) Events(ctx *gin.Context) {
	since := 0
	if raw := ctx.Query("since"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidSince})
			return
		}
		since = n
	}

	evs := h.events.Since(since)
	if evs == nil {
		evs = []domain.Event{}
	}
	ctx.JSON(http.StatusOK, eventsResponse{Events: evs, Next: since + len(evs)})
}

// RunEvents reads a run's events from the event store, including past runs.
func (h *RunHandler) RunEvents(ctx *gin.Context) {
	if h.repo == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": errStoreUnavailable})
		return
	}

	limit := defaultEventLimit
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidLimit})
			return
		}
		limit = n
	}

	evs, err := h.repo.ListByRun(ctx.Request.Context(), ctx.Param("id"), limit)
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "list run events", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if evs == nil {
		evs = []domain.Event{}
	}
	ctx.JSON(http.StatusOK, gin.H{"events": evs})
}

// Summary renders the live HTML summary of the current run.
func (h *RunHandler) Summary(ctx *gin.Context) {
	var buf bytes.Buffer
	if err := events.RenderSummary(&buf, h.runName, h.outDir, h.events.Events()); err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "render summary", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
