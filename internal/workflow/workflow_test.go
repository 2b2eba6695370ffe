package workflow_test

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
	"github.com/ErlanBelekov/longrun-driver/internal/retry"
	"github.com/ErlanBelekov/longrun-driver/internal/scheduler"
	"github.com/ErlanBelekov/longrun-driver/internal/workflow"
)

var noDelay = retry.Policy{Tries: 3, Sleep: func(context.Context, time.Duration) error { return nil }}

func newRunner(ui *fakeUI, sel workflow.Selectors) (*workflow.Runner, *fakeRecorder) {
	rec := &fakeRecorder{}
	return workflow.New(ui, sel, rec, slog.Default(), workflow.WithRetry(noDelay)), rec
}

// ---- selectors ----

func TestSelectors_Get(t *testing.T) {
	sel := workflow.Selectors{workflow.SelSymptomAdd: {"Add Symptom", "증상 추가"}}

	if got := sel.Get(workflow.SelSymptomAdd); !slices.Equal(got, []string{"Add Symptom", "증상 추가"}) {
		t.Fatalf("configured candidates must win, got %v", got)
	}
	if got := sel.Get(workflow.SelConfirm); !slices.Equal(got, []string{"확인"}) {
		t.Fatalf("expected default, got %v", got)
	}
	if got := sel.Get(workflow.SelDuration24h); got != nil {
		t.Fatalf("expected no default for duration text, got %v", got)
	}
}

// ---- measurement start ----

func TestEnsureMeasurementStarted_AlreadyRunning(t *testing.T) {
	ui := newFakeUI("증상 추가")
	r, rec := newRunner(ui, nil)

	if err := r.EnsureMeasurementStarted(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ui.taps) != 0 {
		t.Fatalf("a running measurement needs no taps, got %v", ui.taps)
	}
	if len(rec.named(domain.EventMeasurementRunning)) != 1 {
		t.Fatal("expected measurement_already_running")
	}
}

func TestEnsureMeasurementStarted_HomeScreenPath(t *testing.T) {
	ui := newFakeUI("Start Now")
	ui.onTap["Start Now"] = ui.show("동의")
	ui.onTap["동의"] = ui.show("S-Patch 사용하기")
	ui.onTap["S-Patch 사용하기"] = ui.show("검사 기간을 선택해주세요", "24시간", "48시간", "확인")
	ui.onTap["확인"] = ui.show("증상 추가")

	r, rec := newRunner(ui, workflow.Selectors{
		workflow.SelDuration24h: {"24시간"},
		workflow.SelDuration48h: {"48시간"},
	})

	if err := r.EnsureMeasurementStarted(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Start Now", "동의", "S-Patch 사용하기", "24시간", "확인"}
	if !slices.Equal(ui.taps, want) {
		t.Fatalf("expected taps %v, got %v", want, ui.taps)
	}
	if len(rec.named(domain.EventTappingStartNow)) != 1 || len(rec.named(domain.EventMeasurementConfirmed)) != 1 {
		t.Fatalf("unexpected events %+v", rec.events)
	}
}

func TestEnsureMeasurementStarted_OfflineCheckbox(t *testing.T) {
	ui := newFakeUI("오프라인", "S-Patch 사용하기")
	ui.elements["com.example:id/offline_check"] = "el-9"
	ui.onTap["S-Patch 사용하기"] = ui.show("증상 추가")

	r, rec := newRunner(ui, workflow.Selectors{workflow.SelOfflineCheckbox: {"com.example:id/offline_check"}})

	if err := r.EnsureMeasurementStarted(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(ui.clicks, []string{"el-9"}) {
		t.Fatalf("expected the unchecked checkbox to be clicked, got %v", ui.clicks)
	}
	if len(rec.named(domain.EventOfflineModeDetected)) != 1 {
		t.Fatal("expected offline_mode_detected")
	}
}

func TestEnsureMeasurementStarted_OfflineCheckboxAlreadyChecked(t *testing.T) {
	ui := newFakeUI("오프라인", "S-Patch 사용하기")
	ui.elements["offline_check"] = "el-9"
	ui.checked["el-9"] = true
	ui.onTap["S-Patch 사용하기"] = ui.show("증상 추가")

	r, _ := newRunner(ui, workflow.Selectors{workflow.SelOfflineCheckbox: {"offline_check"}})

	if err := r.EnsureMeasurementStarted(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ui.clicks) != 0 {
		t.Fatalf("a checked box must not be toggled, got %v", ui.clicks)
	}
}

func TestEnsureMeasurementStarted_OfflineTextFallback(t *testing.T) {
	ui := newFakeUI("오프라인", "동의합니다", "다음")
	ui.onTap["다음"] = ui.show("증상 추가")

	r, _ := newRunner(ui, workflow.Selectors{workflow.SelOfflineConfirm: {"다음"}})

	if err := r.EnsureMeasurementStarted(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(ui.taps, []string{"동의합니다", "다음"}) {
		t.Fatalf("unexpected taps %v", ui.taps)
	}
}

func TestEnsureMeasurementStarted_GivesUp(t *testing.T) {
	ui := newFakeUI()
	r, rec := newRunner(ui, nil)

	err := r.EnsureMeasurementStarted(context.Background())
	if !errors.Is(err, workflow.ErrMeasurementNotRunning) {
		t.Fatalf("expected ErrMeasurementNotRunning, got %v", err)
	}
	if got := len(rec.named(domain.EventEnsureMeasurement)); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if len(ui.screenshots) != 3 || ui.screenshots[0] != "measurement_start_failed" {
		t.Fatalf("expected a failure screenshot per attempt, got %v", ui.screenshots)
	}
}

// ---- symptom injection ----

func TestInjectSymptom_Success(t *testing.T) {
	ui := newFakeUI("증상 추가", "두근거림", "환자일지 등록")
	r, rec := newRunner(ui, nil)

	err := r.InjectSymptom(context.Background(), domain.SymptomPayload{Symptoms: []string{"두근거림"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantTaps := []string{"증상 추가", "두근거림", "증상 추가", "환자일지 등록"}
	if !slices.Equal(ui.taps, wantTaps) {
		t.Fatalf("expected taps %v, got %v", wantTaps, ui.taps)
	}
	wantShots := []string{"inject_before", "symptom_picker_open", "symptom_picker_submitted", "journal_submitted", "inject_after"}
	if !slices.Equal(ui.screenshots, wantShots) {
		t.Fatalf("expected screenshots %v, got %v", wantShots, ui.screenshots)
	}
	if !slices.Equal(ui.logcats, []string{"inject_logcat"}) {
		t.Fatalf("expected one logcat capture, got %v", ui.logcats)
	}
	done := rec.named(domain.EventInjectDone)
	if len(done) != 1 || done[0].data["last_step"] != "journal_submitted" {
		t.Fatalf("expected inject_symptom_done at journal_submitted, got %+v", done)
	}
	if _, ok := done[0].data["elapsed_sec"].(float64); !ok {
		t.Fatalf("expected elapsed_sec, got %+v", done[0].data)
	}
}

func TestInjectSymptom_OtherTextAndActivities(t *testing.T) {
	ui := newFakeUI("증상 추가", "기타", "환자일지 등록")
	ui.elements["android.widget.EditText"] = "edit-1"
	ui.onTap["환자일지 등록"] = ui.show("활동 추가", "산책")

	r, rec := newRunner(ui, nil)
	err := r.InjectSymptom(context.Background(), domain.SymptomPayload{
		OtherText:  "mild pressure",
		Activities: []string{"산책"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ui.typed["edit-1"] != "mild pressure" {
		t.Fatalf("expected other text typed into the text field, got %v", ui.typed)
	}
	if ui.hidden != 1 {
		t.Fatalf("expected keyboard hidden once, got %d", ui.hidden)
	}
	want := []string{"증상 추가", "기타", "증상 추가", "환자일지 등록", "활동 추가", "산책", "활동 추가"}
	if !slices.Equal(ui.taps, want) {
		t.Fatalf("expected taps %v, got %v", want, ui.taps)
	}
	if got := rec.named(domain.EventInjectDone)[0].data["last_step"]; got != "activities_added" {
		t.Fatalf("expected last_step activities_added, got %v", got)
	}
}

func TestInjectSymptom_FailureRecordsEvidence(t *testing.T) {
	ui := newFakeUI("증상 추가")
	ui.tapErr["어지러움"] = errors.New("element not interactable")

	r, rec := newRunner(ui, nil)
	err := r.InjectSymptom(context.Background(), domain.SymptomPayload{Symptoms: []string{"어지러움"}})
	if err == nil {
		t.Fatal("expected an error")
	}

	failed := rec.named(domain.EventInjectFailed)
	if len(failed) != 3 {
		t.Fatalf("expected one inject_symptom_failed per attempt, got %d", len(failed))
	}
	if failed[0].data["last_step"] != "picker_open" || failed[0].data["error"] == "" {
		t.Fatalf("unexpected failure data %+v", failed[0].data)
	}
	if !slices.Contains(ui.screenshots, "inject_failed_screen") || !slices.Contains(ui.logcats, "inject_failed_logcat") {
		t.Fatalf("expected failure evidence, got %v %v", ui.screenshots, ui.logcats)
	}
	if len(rec.named(domain.EventInjectDone)) != 0 {
		t.Fatal("no inject_symptom_done on failure")
	}
}

func TestInjectSymptom_CancelledStopsRetrying(t *testing.T) {
	ui := newFakeUI()
	rec := &fakeRecorder{}
	r := workflow.New(ui, nil, rec, slog.Default(), workflow.WithRetry(retry.Policy{Tries: 3, Delay: time.Hour}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.InjectSymptom(ctx, domain.SymptomPayload{Symptoms: []string{"x"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := len(rec.named(domain.EventInjectStart)); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

// ---- job ----

func TestSymptomJob_ResolvesPayloadFromCatalog(t *testing.T) {
	ui := newFakeUI("증상 추가", "흉통", "환자일지 등록")
	r, _ := newRunner(ui, nil)

	var job scheduler.Job = workflow.NewSymptomJob(r, []string{"흉통"}, rand.New(rand.NewPCG(1, 2)))
	if err := job.Run(context.Background(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Contains(ui.taps, "흉통") {
		t.Fatalf("expected the catalog symptom to be tapped, got %v", ui.taps)
	}
}

func TestSymptomJob_UsesPlanPayload(t *testing.T) {
	ui := newFakeUI("증상 추가", "두근거림", "흉통", "환자일지 등록")
	r, _ := newRunner(ui, nil)

	job := workflow.NewSymptomJob(r, []string{"두근거림"}, nil)
	at := 6.0
	if err := job.Run(context.Background(), &at, &domain.SymptomPayload{Symptoms: []string{"흉통"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slices.Contains(ui.taps, "두근거림") {
		t.Fatalf("a plan payload must not be replaced by the catalog, got %v", ui.taps)
	}
}
