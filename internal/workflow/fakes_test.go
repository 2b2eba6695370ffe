package workflow_test

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// fakeUI is a scripted screen. Texts in visible are on screen; tapping a text
// applies onTap[text] to the screen before returning.
type fakeUI struct {
	visible map[string]bool
	onTap   map[string]func(u *fakeUI)
	tapErr  map[string]error

	elements map[string]string // resource id -> element id
	checked  map[string]bool

	taps        []string
	clicks      []string
	typed       map[string]string
	screenshots []string
	logcats     []string
	hidden      int
	foreground  int
}

func newFakeUI(visible ...string) *fakeUI {
	u := &fakeUI{
		visible:  map[string]bool{},
		onTap:    map[string]func(*fakeUI){},
		tapErr:   map[string]error{},
		elements: map[string]string{},
		checked:  map[string]bool{},
		typed:    map[string]string{},
	}
	for _, v := range visible {
		u.visible[v] = true
	}
	return u
}

func (u *fakeUI) show(texts ...string) func(*fakeUI) {
	return func(u *fakeUI) {
		for _, t := range texts {
			u.visible[t] = true
		}
	}
}

func (u *fakeUI) BringToForeground(context.Context) error {
	u.foreground++
	return nil
}

func (u *fakeUI) Idle(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func (u *fakeUI) IsVisible(_ context.Context, texts []string, _ bool) bool {
	return slices.ContainsFunc(texts, func(t string) bool { return u.visible[t] })
}

func (u *fakeUI) Tap(_ context.Context, texts []string, _ time.Duration, _ bool) error {
	for _, t := range texts {
		if err := u.tapErr[t]; err != nil {
			return err
		}
		if !u.visible[t] {
			continue
		}
		u.taps = append(u.taps, t)
		if fn := u.onTap[t]; fn != nil {
			fn(u)
		}
		return nil
	}
	return fmt.Errorf("could not find any of %q", texts)
}

func (u *fakeUI) Find(_ context.Context, value string, _ time.Duration, _ bool) (string, error) {
	if id, ok := u.elements[value]; ok {
		return id, nil
	}
	return "", fmt.Errorf("no such element %q", value)
}

func (u *fakeUI) FindClass(_ context.Context, class string, _ time.Duration) (string, error) {
	return u.Find(context.Background(), class, 0, false)
}

func (u *fakeUI) Click(_ context.Context, id string) error {
	u.clicks = append(u.clicks, id)
	return nil
}

func (u *fakeUI) IsChecked(_ context.Context, id string) (bool, error) { return u.checked[id], nil }

func (u *fakeUI) TypeInto(_ context.Context, id, text string) error {
	u.typed[id] = text
	return nil
}

func (u *fakeUI) HideKeyboard(context.Context) error {
	u.hidden++
	return nil
}

func (u *fakeUI) Screenshot(_ context.Context, name string) (string, error) {
	u.screenshots = append(u.screenshots, name)
	return "/tmp/" + name + ".png", nil
}

func (u *fakeUI) Logcat(_ context.Context, name string) (string, error) {
	u.logcats = append(u.logcats, name)
	return "/tmp/" + name + ".txt", nil
}

type recordedEvent struct {
	name string
	data map[string]any
}

type fakeRecorder struct {
	events []recordedEvent
}

func (r *fakeRecorder) Record(_ context.Context, name string, data map[string]any) {
	r.events = append(r.events, recordedEvent{name, data})
}

func (r *fakeRecorder) named(name string) []recordedEvent {
	var out []recordedEvent
	for _, ev := range r.events {
		if ev.name == name {
			out = append(out, ev)
		}
	}
	return out
}
