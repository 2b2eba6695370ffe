package workflow

import (
	"context"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
)

// EnsureMeasurementStarted brings the app to the running-measurement screen.
// It is idempotent: an already running measurement returns immediately.
//
// Paths handled: already running; home screen (Start Now, consent, S-Patch,
// duration sheet, confirm); offline mode (offline consent first).
func (r *Runner) EnsureMeasurementStarted(ctx context.Context) error {
	return r.policy("ensure_measurement_started").Do(ctx, r.ensureMeasurementStarted)
}

func (r *Runner) ensureMeasurementStarted(ctx context.Context) error {
	ui := r.ui
	r.recorder.Record(ctx, domain.EventEnsureMeasurement, map[string]any{})

	if err := r.foreground(ctx, 1500*time.Millisecond); err != nil {
		return err
	}

	symptomBtn := r.sel.Get(SelSymptomAdd)
	if ui.IsVisible(ctx, symptomBtn, true) {
		r.recorder.Record(ctx, domain.EventMeasurementRunning, map[string]any{})
		return nil
	}

	if startNow := r.sel.Get(SelStartNow); ui.IsVisible(ctx, startNow, true) {
		r.recorder.Record(ctx, domain.EventTappingStartNow, map[string]any{})
		if err := ui.Tap(ctx, startNow, 10*time.Second, false); err != nil {
			return err
		}
		if err := ui.Idle(ctx, 2*time.Second); err != nil {
			return err
		}
	}

	if agree := r.sel.Get(SelConsentAgree); ui.IsVisible(ctx, agree, true) {
		if err := ui.Tap(ctx, agree, 10*time.Second, true); err != nil {
			return err
		}
	}

	if ui.IsVisible(ctx, r.sel.Get(SelOfflineMode), true) {
		r.recorder.Record(ctx, domain.EventOfflineModeDetected, map[string]any{})
		if err := r.offlineConsent(ctx); err != nil {
			return err
		}
	}

	if use := r.sel.Get(SelUseSPatch); ui.IsVisible(ctx, use, true) {
		if err := ui.Tap(ctx, use, 10*time.Second, true); err != nil {
			return err
		}
	}

	if ui.IsVisible(ctx, r.sel.Get(SelDurationSheet), true) {
		if err := r.selectDuration(ctx); err != nil {
			return err
		}
		if confirm := r.sel.Get(SelConfirm); ui.IsVisible(ctx, confirm, true) {
			if err := ui.Tap(ctx, confirm, 10*time.Second, false); err != nil {
				return err
			}
		}
	}

	if err := r.foreground(ctx, 2*time.Second); err != nil {
		return err
	}
	if !ui.IsVisible(ctx, symptomBtn, true) {
		if err := ui.Idle(ctx, 5*time.Second); err != nil {
			return err
		}
	}
	if !ui.IsVisible(ctx, symptomBtn, true) {
		r.screenshot(ctx, "measurement_start_failed")
		return ErrMeasurementNotRunning
	}

	r.recorder.Record(ctx, domain.EventMeasurementConfirmed, map[string]any{})
	return nil
}

// offlineConsent ticks the offline consent checkbox when its id is
// configured, otherwise taps the consent row and its confirm button.
func (r *Runner) offlineConsent(ctx context.Context) error {
	ui := r.ui
	for _, id := range r.sel.Get(SelOfflineCheckbox) {
		el, err := ui.Find(ctx, id, 5*time.Second, false)
		if err != nil {
			continue
		}
		if checked, err := ui.IsChecked(ctx, el); err == nil && checked {
			return nil
		}
		if err := ui.Click(ctx, el); err == nil {
			return nil
		}
	}

	if agree := r.sel.Get(SelOfflineAgree); ui.IsVisible(ctx, agree, true) {
		if err := ui.Tap(ctx, agree, 10*time.Second, true); err != nil {
			return err
		}
	}
	if confirm := r.sel.Get(SelOfflineConfirm); len(confirm) > 0 && ui.IsVisible(ctx, confirm, true) {
		if err := ui.Tap(ctx, confirm, 10*time.Second, true); err != nil {
			return err
		}
	}
	return nil
}

// selectDuration prefers 24h, then 48h, then 72h.
func (r *Runner) selectDuration(ctx context.Context) error {
	for _, key := range []string{SelDuration24h, SelDuration48h, SelDuration72h} {
		texts := r.sel.Get(key)
		if len(texts) == 0 || !r.ui.IsVisible(ctx, texts, true) {
			continue
		}
		return r.ui.Tap(ctx, texts, 10*time.Second, false)
	}
	return nil
}

func (r *Runner) foreground(ctx context.Context, settle time.Duration) error {
	if err := r.ui.BringToForeground(ctx); err != nil {
		r.logger.WarnContext(ctx, "bring app to foreground", "error", err)
	}
	return r.ui.Idle(ctx, settle)
}

// screenshot is best-effort evidence; failures are only logged.
func (r *Runner) screenshot(ctx context.Context, name string) {
	if _, err := r.ui.Screenshot(ctx, name); err != nil {
		r.logger.WarnContext(ctx, "screenshot failed", "name", name, "error", err)
	}
}
