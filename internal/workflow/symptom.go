package workflow

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
)

const editTextClass = "android.widget.EditText"

// InjectSymptom records one symptom event in the running measurement, with
// screenshots around each stage and a logcat capture at the end.
func (r *Runner) InjectSymptom(ctx context.Context, p domain.SymptomPayload) error {
	return r.policy("inject_symptom").Do(ctx, func(ctx context.Context) error {
		return r.injectSymptom(ctx, p)
	})
}

func (r *Runner) injectSymptom(ctx context.Context, p domain.SymptomPayload) error {
	start := r.now()
	r.recorder.Record(ctx, domain.EventInjectStart, map[string]any{
		"symptoms":   p.Symptoms,
		"other_text": p.OtherText,
		"activities": p.Activities,
	})

	lastStep := "init"
	err := r.injectSteps(ctx, p, &lastStep)
	elapsed := r.now().Sub(start).Round(100 * time.Millisecond).Seconds()

	if err != nil {
		r.screenshot(ctx, "inject_failed_screen")
		if _, lerr := r.ui.Logcat(ctx, "inject_failed_logcat"); lerr != nil {
			r.logger.WarnContext(ctx, "logcat failed", "error", lerr)
		}
		r.recorder.Record(ctx, domain.EventInjectFailed, map[string]any{
			"error":       err.Error(),
			"elapsed_sec": elapsed,
			"last_step":   lastStep,
		})
		return fmt.Errorf("inject symptom after %s: %w", lastStep, err)
	}

	r.recorder.Record(ctx, domain.EventInjectDone, map[string]any{
		"status":      "ok",
		"elapsed_sec": elapsed,
		"last_step":   lastStep,
	})
	return nil
}

func (r *Runner) injectSteps(ctx context.Context, p domain.SymptomPayload, lastStep *string) error {
	ui := r.ui

	if err := r.foreground(ctx, time.Second); err != nil {
		return err
	}
	r.screenshot(ctx, "inject_before")
	*lastStep = "before_screenshot"

	if err := ui.Tap(ctx, r.sel.Get(SelSymptomAdd), 15*time.Second, true); err != nil {
		return err
	}
	r.screenshot(ctx, "symptom_picker_open")
	*lastStep = "picker_open"

	for _, s := range p.Symptoms {
		if err := ui.Tap(ctx, []string{s}, 10*time.Second, true); err != nil {
			return err
		}
	}
	*lastStep = "symptoms_selected"

	if p.OtherText != "" {
		if err := r.enterOtherText(ctx, p.OtherText); err != nil {
			return err
		}
		*lastStep = "other_text_entered"
	}

	// let the selection animation settle
	if err := ui.Idle(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if err := ui.Tap(ctx, r.sel.Get(SelSymptomConfirm), 10*time.Second, true); err != nil {
		return err
	}
	r.screenshot(ctx, "symptom_picker_submitted")
	*lastStep = "picker_submitted"

	if err := ui.Tap(ctx, r.sel.Get(SelSymptomDone), 15*time.Second, true); err != nil {
		return err
	}
	r.screenshot(ctx, "journal_submitted")
	*lastStep = "journal_submitted"

	if len(p.Activities) > 0 {
		if err := r.addActivities(ctx, p.Activities); err != nil {
			return err
		}
		*lastStep = "activities_added"
	}

	r.screenshot(ctx, "inject_after")
	if _, err := ui.Logcat(ctx, "inject_logcat"); err != nil {
		r.logger.WarnContext(ctx, "logcat failed", "error", err)
	}
	return nil
}

// enterOtherText fills the free-text field, by configured id when available,
// otherwise through the "other" tile and the first text input.
func (r *Runner) enterOtherText(ctx context.Context, text string) error {
	ui := r.ui

	var (
		el  string
		err error
	)
	if ids := r.sel.Get(SelOtherTextField); len(ids) > 0 {
		el, err = ui.Find(ctx, ids[0], 5*time.Second, false)
	} else {
		if err = ui.Tap(ctx, r.sel.Get(SelOtherTile), 5*time.Second, true); err != nil {
			return err
		}
		el, err = ui.FindClass(ctx, editTextClass, 5*time.Second)
	}
	if err != nil {
		return fmt.Errorf("other text field: %w", err)
	}
	if err := ui.TypeInto(ctx, el, text); err != nil {
		return err
	}

	if done := r.sel.Get(SelKeyboardDone); ui.IsVisible(ctx, done, false) {
		return ui.Tap(ctx, done, 3*time.Second, false)
	}
	if err := ui.HideKeyboard(ctx); err != nil {
		r.logger.DebugContext(ctx, "hide keyboard", "error", err)
	}
	return nil
}

func (r *Runner) addActivities(ctx context.Context, activities []string) error {
	ui := r.ui

	add := r.sel.Get(SelAddActivity)
	if !ui.IsVisible(ctx, add, true) {
		return nil
	}
	if err := ui.Tap(ctx, add, 10*time.Second, true); err != nil {
		return err
	}
	for _, a := range activities {
		if err := ui.Tap(ctx, []string{a}, 10*time.Second, true); err != nil {
			return err
		}
	}
	if submit := r.sel.Get(SelActivitySubmit); ui.IsVisible(ctx, submit, true) {
		if err := ui.Tap(ctx, submit, 10*time.Second, true); err != nil {
			return err
		}
	}
	r.screenshot(ctx, "activity_added")
	return nil
}

// SymptomJob is the scheduled unit of work: resolve the entry's payload
// against the catalog, then inject it.
type SymptomJob struct {
	runner  *Runner
	catalog []string
	rng     *rand.Rand
}

func NewSymptomJob(runner *Runner, catalog []string, rng *rand.Rand) *SymptomJob {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &SymptomJob{runner: runner, catalog: catalog, rng: rng}
}

func (j *SymptomJob) Run(ctx context.Context, _ *float64, payload *domain.SymptomPayload) error {
	p := domain.ResolvePayload(payload, j.catalog, j.rng)
	return j.runner.InjectSymptom(ctx, p)
}
