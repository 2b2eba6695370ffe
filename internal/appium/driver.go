// Package appium drives the app under test through an Appium server. Driver
// is both the health.Session the monitor recovers and the UI the workflows
// operate.
package appium

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/artifacts"
	"github.com/ErlanBelekov/longrun-driver/internal/domain"
	"github.com/ErlanBelekov/longrun-driver/internal/events"
	"github.com/ErlanBelekov/longrun-driver/internal/metrics"
	"github.com/ErlanBelekov/longrun-driver/internal/retry"
)

const keycodeBack = 4

const logcatWindow = 30 * time.Second

var ErrAppNotConfigured = errors.New("app package and activity are required")

// Options are the session capabilities and server location.
type Options struct {
	ServerURL         string
	DeviceName        string
	UDID              string
	AppPackage        string
	AppActivity       string
	NoReset           bool
	NewCommandTimeout int // seconds
}

func (o Options) capabilities() map[string]any {
	caps := map[string]any{
		"platformName":             "Android",
		"appium:automationName":    "UiAutomator2",
		"appium:deviceName":        o.DeviceName,
		"appium:noReset":           o.NoReset,
		"appium:newCommandTimeout": o.NewCommandTimeout,
	}
	if o.UDID != "" {
		caps["appium:udid"] = o.UDID
	}
	if o.AppPackage != "" {
		caps["appium:appPackage"] = o.AppPackage
	}
	if o.AppActivity != "" {
		caps["appium:appActivity"] = o.AppActivity
	}
	return caps
}

// Waits tunes element lookups.
type Waits struct {
	Locator    time.Duration // per locator strategy before falling through
	Poll       time.Duration // between lookups of one locator
	MinPerText time.Duration // lower bound of the per-candidate share in Tap
	Visible    time.Duration // IsVisible budget per candidate
}

var DefaultWaits = Waits{
	Locator:    2 * time.Second,
	Poll:       500 * time.Millisecond,
	MinPerText: 2 * time.Second,
	Visible:    2 * time.Second,
}

type Driver struct {
	client    *Client
	opts      Options
	recorder  events.Recorder
	artifacts *artifacts.Manager
	logger    *slog.Logger

	waits    Waits
	tapRetry retry.Policy
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Driver)

func WithWaits(w Waits) Option { return func(d *Driver) { d.waits = w } }

// WithTapRetry replaces the Tap retry policy (3 tries, 2s apart).
func WithTapRetry(p retry.Policy) Option { return func(d *Driver) { d.tapRetry = p } }

func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Driver) { d.sleep = fn }
}

// Connect creates the WebDriver session.
func Connect(ctx context.Context, opts Options, recorder events.Recorder, am *artifacts.Manager, logger *slog.Logger, options ...Option) (*Driver, error) {
	client, err := NewClient(opts.ServerURL, 60*time.Second)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		client:    client,
		opts:      opts,
		recorder:  recorder,
		artifacts: am,
		logger:    logger.With("component", "appium"),
		waits:     DefaultWaits,
		sleep:     sleepContext,
	}
	d.tapRetry = retry.Policy{
		Tries: 3,
		Delay: 2 * time.Second,
		OnRetry: func(attempt int, err error) {
			metrics.RetryAttemptsTotal.WithLabelValues("tap").Inc()
			d.logger.Warn("tap failed, retrying", "attempt", attempt, "error", err)
		},
	}
	for _, o := range options {
		o(d)
	}
	if d.tapRetry.Sleep == nil {
		d.tapRetry.Sleep = d.sleep
	}

	d.recorder.Record(ctx, domain.EventAppiumConnect, map[string]any{"server": client.baseURL})
	if _, err := client.NewSession(ctx, opts.capabilities()); err != nil {
		return nil, err
	}
	d.logger.InfoContext(ctx, "appium session created", "session_id", client.SessionID())
	return d, nil
}

// Ping reports whether the Appium server is up and ready.
func (d *Driver) Ping(ctx context.Context) error {
	ready, err := d.client.Status(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return errors.New("appium server not ready")
	}
	return nil
}

// Reconnect drops the current session, ignoring errors, and creates a new one.
func (d *Driver) Reconnect(ctx context.Context) error {
	d.recorder.Record(ctx, domain.EventAppiumReconnect, map[string]any{})
	if err := d.client.DeleteSession(ctx); err != nil {
		d.logger.DebugContext(ctx, "delete stale session", "error", err)
	}
	if _, err := d.client.NewSession(ctx, d.opts.capabilities()); err != nil {
		return err
	}
	return nil
}

func (d *Driver) Close(ctx context.Context) error {
	return d.client.DeleteSession(ctx)
}

// ---- health.Session ----

// IsAlive queries the current activity. Any failure means dead.
func (d *Driver) IsAlive(ctx context.Context) (bool, error) {
	if _, err := d.client.CurrentActivity(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// SoftReset re-creates an expired WebDriver session, then presses BACK. An
// idle session outliving newCommandTimeout is the usual reason a check fails,
// and it needs no app restart.
func (d *Driver) SoftReset(ctx context.Context) error {
	if err := d.ensureSession(ctx); err != nil {
		return err
	}
	return d.client.PressKeycode(ctx, keycodeBack)
}

func (d *Driver) ForceRelaunch(ctx context.Context) error {
	if d.opts.AppPackage == "" || d.opts.AppActivity == "" {
		return ErrAppNotConfigured
	}
	if err := d.ensureSession(ctx); err != nil {
		return err
	}
	return d.startActivity(ctx)
}

// KillAndRelaunch terminates the app and brings it back.
func (d *Driver) KillAndRelaunch(ctx context.Context) error {
	if d.opts.AppPackage == "" {
		return ErrAppNotConfigured
	}
	if err := d.ensureSession(ctx); err != nil {
		return err
	}

	if err := d.client.Execute(ctx, "mobile: terminateApp", map[string]any{"appId": d.opts.AppPackage}); err != nil {
		d.logger.WarnContext(ctx, "terminate app", "error", err)
	}
	if err := d.sleep(ctx, time.Second); err != nil {
		return err
	}
	if err := d.activateApp(ctx); err != nil {
		if d.opts.AppActivity == "" {
			return err
		}
		return d.startActivity(ctx)
	}
	return nil
}

// ensureSession reconnects when the server no longer knows the session. No
// app command works without one. Other failures are left to the command.
func (d *Driver) ensureSession(ctx context.Context) error {
	_, err := d.client.CurrentActivity(ctx)
	if !IsInvalidSession(err) {
		return nil
	}
	d.recorder.Record(ctx, domain.EventSessionDeadReconnect, map[string]any{"error": err.Error()})
	d.logger.WarnContext(ctx, "webdriver session lost, reconnecting", "error", err)
	if err := d.Reconnect(ctx); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

// ---- UI ----

// BringToForeground resumes the app without recreating its activity, falling
// back to starting the activity.
func (d *Driver) BringToForeground(ctx context.Context) error {
	if d.opts.AppPackage == "" {
		return nil
	}
	err := d.activateApp(ctx)
	if err == nil || d.opts.AppActivity == "" {
		return err
	}
	return d.startActivity(ctx)
}

func (d *Driver) Idle(ctx context.Context, dur time.Duration) error {
	return d.sleep(ctx, dur)
}

// Find locates value by resource-id, then accessibility id, then exact text,
// then text containment. With contains set only the last strategy is tried.
func (d *Driver) Find(ctx context.Context, value string, timeout time.Duration, contains bool) (string, error) {
	containsLocator := textContains(value)
	if contains {
		return d.WaitFor(ctx, containsLocator, timeout)
	}

	var last error
	for _, loc := range []Locator{
		{Using: ByID, Value: value},
		{Using: ByAccessibilityID, Value: value},
		{Using: ByUIAutomator, Value: fmt.Sprintf("new UiSelector().text(%q)", value)},
		containsLocator,
	} {
		id, err := d.WaitFor(ctx, loc, d.waits.Locator)
		if err == nil {
			return id, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		last = err
	}

	id, err := d.WaitFor(ctx, containsLocator, timeout)
	if err == nil {
		return id, nil
	}
	return "", errors.Join(last, err)
}

// FindClass waits for the first element of an Android widget class.
func (d *Driver) FindClass(ctx context.Context, class string, timeout time.Duration) (string, error) {
	return d.WaitFor(ctx, Locator{Using: ByClassName, Value: class}, timeout)
}

// Locator is a WebDriver lookup strategy and its argument.
type Locator struct {
	Using string
	Value string
}

func textContains(value string) Locator {
	return Locator{Using: ByUIAutomator, Value: fmt.Sprintf("new UiSelector().textContains(%q)", value)}
}

// WaitFor polls loc until it matches or timeout elapses.
func (d *Driver) WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		id, err := d.client.FindElement(ctx, loc.Using, loc.Value)
		if err == nil {
			return id, nil
		}
		if !IsNoSuchElement(err) || !time.Now().Before(deadline) {
			return "", fmt.Errorf("find %s %q: %w", loc.Using, loc.Value, err)
		}
		if err := d.sleep(ctx, min(d.waits.Poll, time.Until(deadline))); err != nil {
			return "", err
		}
	}
}

// Tap clicks the first candidate text found, retrying the whole lookup.
func (d *Driver) Tap(ctx context.Context, texts []string, timeout time.Duration, contains bool) error {
	if len(texts) == 0 {
		return errors.New("tap: no candidate texts")
	}
	per := max(timeout/time.Duration(len(texts)), d.waits.MinPerText)
	return d.tapRetry.Do(ctx, func(ctx context.Context) error {
		last := fmt.Errorf("could not find any of %q", texts)
		for _, text := range texts {
			id, err := d.Find(ctx, text, per, contains)
			if err != nil {
				last = err
				continue
			}
			if err := d.client.Click(ctx, id); err != nil {
				last = err
				continue
			}
			return nil
		}
		return last
	})
}

// IsVisible reports whether any candidate is on screen.
func (d *Driver) IsVisible(ctx context.Context, texts []string, contains bool) bool {
	for _, text := range texts {
		if _, err := d.Find(ctx, text, d.waits.Visible, contains); err == nil {
			return true
		}
	}
	return false
}

func (d *Driver) Click(ctx context.Context, elementID string) error {
	return d.client.Click(ctx, elementID)
}

func (d *Driver) IsChecked(ctx context.Context, elementID string) (bool, error) {
	v, err := d.client.Attribute(ctx, elementID, "checked")
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// TypeInto replaces the element's text.
func (d *Driver) TypeInto(ctx context.Context, elementID, text string) error {
	if err := d.client.Clear(ctx, elementID); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return d.client.SendKeys(ctx, elementID, text)
}

func (d *Driver) HideKeyboard(ctx context.Context) error {
	return d.client.HideKeyboard(ctx)
}

// Screenshot saves the current screen under the run's screenshots/.
func (d *Driver) Screenshot(ctx context.Context, name string) (string, error) {
	data, err := d.client.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("screenshot %s: %w", name, err)
	}
	return d.artifacts.SavePNG(name, data)
}

// Logcat captures a short device log. Outcome events are best-effort.
func (d *Driver) Logcat(ctx context.Context, name string) (string, error) {
	d.recorder.Record(ctx, domain.EventLogcatStart, map[string]any{"name": name, "seconds": logcatWindow.Seconds()})
	path, err := d.artifacts.Logcat(ctx, name, logcatWindow)
	if err != nil {
		d.recorder.Record(ctx, domain.EventLogcatFailed, map[string]any{"name": name, "error": err.Error()})
		return path, err
	}
	d.recorder.Record(ctx, domain.EventLogcatDone, map[string]any{"name": name, "path": path})
	return path, nil
}

func (d *Driver) activateApp(ctx context.Context) error {
	return d.client.Execute(ctx, "mobile: activateApp", map[string]any{"appId": d.opts.AppPackage})
}

func (d *Driver) startActivity(ctx context.Context) error {
	return d.client.Execute(ctx, "mobile: startActivity", map[string]any{
		"intent": d.opts.AppPackage + "/" + d.opts.AppActivity,
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
