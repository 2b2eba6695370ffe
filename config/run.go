package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/appium"
	"github.com/ErlanBelekov/longrun-driver/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultPlatform        = "android"
	defaultRunName         = "run"
	defaultDurationHours   = 24
	defaultIntervalHours   = 4
	defaultAppiumServerURL = "http://127.0.0.1:4723"
	defaultDeviceName      = "Android"
	defaultCommandTimeout  = 3600
)

// RunFile is the YAML description of one long run.
type RunFile struct {
	Platform       string                           `yaml:"platform"`
	Run            RunSection                       `yaml:"run"`
	Android        Android                          `yaml:"android"`
	Selectors      map[string]map[string]StringList `yaml:"selectors"`
	SymptomCatalog []string                         `yaml:"symptom_catalog" validate:"dive,required"`
	SymptomPlan    []PlanItem                       `yaml:"symptom_plan"`
}

type RunSection struct {
	Name                 string   `yaml:"name"`
	DurationHours        *float64 `yaml:"duration_hours"`
	SymptomIntervalHours *float64 `yaml:"symptom_interval_hours"`
	StartImmediately     *bool    `yaml:"start_immediately"`
}

type Android struct {
	AppiumServerURL   string `yaml:"appium_server_url"`
	DeviceName        string `yaml:"device_name"`
	UDID              string `yaml:"udid"`
	AppPackage        string `yaml:"app_package"`
	AppActivity       string `yaml:"app_activity"`
	NoReset           *bool  `yaml:"no_reset"`
	NewCommandTimeout int    `yaml:"new_command_timeout" validate:"gte=0"`
}

type PlanItem struct {
	AtHour     *float64 `yaml:"at_hour"`
	Cron       string   `yaml:"cron"`
	Symptoms   []string `yaml:"symptoms"`
	OtherText  string   `yaml:"other_text"`
	Activities []string `yaml:"activities"`
}

// StringList accepts either a single string or a list of strings.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

// LoadRun reads, validates and defaults the run file at path.
func LoadRun(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	return ParseRun(data)
}

func ParseRun(data []byte) (*RunFile, error) {
	f := &RunFile{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse run file: %w", err)
	}

	f.Platform = strings.ToLower(strings.TrimSpace(f.Platform))
	if f.Platform == "" {
		f.Platform = defaultPlatform
	}
	if f.Platform != "android" {
		return nil, fmt.Errorf("%w: %q, only android is implemented", domain.ErrUnsupportedPlatform, f.Platform)
	}

	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid run file: %w", err)
	}
	if f.Run.DurationHours != nil && *f.Run.DurationHours <= 0 {
		return nil, fmt.Errorf("%w: duration_hours must be positive", domain.ErrInvalidWindow)
	}
	if f.Run.SymptomIntervalHours != nil && *f.Run.SymptomIntervalHours <= 0 {
		return nil, fmt.Errorf("%w: symptom_interval_hours must be positive", domain.ErrInvalidPlan)
	}
	for i, item := range f.SymptomPlan {
		if item.AtHour != nil && item.Cron != "" {
			return nil, fmt.Errorf("%w: symptom_plan[%d] sets both at_hour and cron", domain.ErrInvalidPlan, i)
		}
	}

	f.applyDefaults()
	return f, nil
}

func (f *RunFile) applyDefaults() {
	if f.Run.Name == "" {
		f.Run.Name = defaultRunName
	}
	if f.Run.DurationHours == nil {
		h := float64(defaultDurationHours)
		f.Run.DurationHours = &h
	}
	if f.Run.SymptomIntervalHours == nil {
		h := float64(defaultIntervalHours)
		f.Run.SymptomIntervalHours = &h
	}
	if f.Run.StartImmediately == nil {
		v := true
		f.Run.StartImmediately = &v
	}
	if f.Android.AppiumServerURL == "" {
		f.Android.AppiumServerURL = defaultAppiumServerURL
	}
	if f.Android.DeviceName == "" {
		f.Android.DeviceName = defaultDeviceName
	}
	if f.Android.NoReset == nil {
		v := true
		f.Android.NoReset = &v
	}
	if f.Android.NewCommandTimeout == 0 {
		f.Android.NewCommandTimeout = defaultCommandTimeout
	}
	// A plan line with no time runs at the window start.
	for i := range f.SymptomPlan {
		if f.SymptomPlan[i].AtHour == nil && f.SymptomPlan[i].Cron == "" {
			h := 0.0
			f.SymptomPlan[i].AtHour = &h
		}
	}
}

func (f *RunFile) Duration() time.Duration { return domain.Hours(*f.Run.DurationHours) }

func (f *RunFile) Interval() time.Duration { return domain.Hours(*f.Run.SymptomIntervalHours) }

func (f *RunFile) StartImmediately() bool { return *f.Run.StartImmediately }

// Plan converts the configured plan lines. Empty means interval mode.
func (f *RunFile) Plan() []domain.PlanItem {
	out := make([]domain.PlanItem, 0, len(f.SymptomPlan))
	for _, item := range f.SymptomPlan {
		out = append(out, domain.PlanItem{
			AtHour: item.AtHour,
			Cron:   item.Cron,
			Payload: domain.SymptomPayload{
				Symptoms:   item.Symptoms,
				OtherText:  item.OtherText,
				Activities: item.Activities,
			},
		})
	}
	return out
}

// PlatformSelectors returns the selector candidates for the run's platform.
func (f *RunFile) PlatformSelectors() map[string][]string {
	out := map[string][]string{}
	for key, list := range f.Selectors[f.Platform] {
		out[key] = list
	}
	return out
}

func (f *RunFile) AppiumOptions() appium.Options {
	return appium.Options{
		ServerURL:         f.Android.AppiumServerURL,
		DeviceName:        f.Android.DeviceName,
		UDID:              f.Android.UDID,
		AppPackage:        f.Android.AppPackage,
		AppActivity:       f.Android.AppActivity,
		NoReset:           *f.Android.NoReset,
		NewCommandTimeout: f.Android.NewCommandTimeout,
	}
}
