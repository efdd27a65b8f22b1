package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"tickd/internal/schedule"
	"tickd/pkg/unitctl"
)

var validate = validator.New()

func init() {
	// Report fields by their config keys.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// structErrors runs the tag checks and renders failures as config paths,
// e.g. "storage.driver: must satisfy oneof=none file ...".
func structErrors(cfg *Config) []error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{err}
	}
	out := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out = append(out, fmt.Errorf("%s: must satisfy %s", path, rule))
	}
	return out
}

// Validate checks a parsed config. Schedules are parsed against loc so a bad
// schedule string is rejected before any plan is dispatched.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if errs := structErrors(cfg); len(errs) > 0 {
		return errors.Join(errs...)
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Reactor.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("reactor.timezone: %w", err)
		}
		loc = l
	}
	if s := cfg.Storage; s != nil {
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
		if s.Retain < 0 {
			return errors.New("storage.retain must be >= 0")
		}
	}

	seen := make(map[string]struct{}, len(cfg.Plans))
	var errs []error
	for i, p := range cfg.Plans {
		path := fmt.Sprintf("plans[%d]", i)
		name := strings.TrimSpace(p.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name: required", path))
		} else if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("%s.name: duplicate %q", path, name))
		}
		seen[name] = struct{}{}

		hasCmd := len(p.Command) > 0 && strings.TrimSpace(p.Command[0]) != ""
		switch {
		case p.Unit != nil && len(p.Command) > 0:
			errs = append(errs, fmt.Errorf("%s: command and unit are mutually exclusive", path))
		case p.Unit != nil:
			if strings.TrimSpace(p.Unit.Name) == "" {
				errs = append(errs, fmt.Errorf("%s.unit.name: required", path))
			}
			if _, err := unitctl.ParseOp(p.Unit.Op); err != nil {
				errs = append(errs, fmt.Errorf("%s.unit.op: %w", path, err))
			}
		case !hasCmd:
			errs = append(errs, fmt.Errorf("%s.command: required", path))
		}
		if _, err := schedule.ParseSpec(p.Schedule, loc); err != nil {
			errs = append(errs, fmt.Errorf("%s.schedule: %w", path, err))
		}
		if _, err := ParseDurationField(path+".timeout", p.Timeout); err != nil {
			errs = append(errs, err)
		}
		for j, kv := range p.Env {
			if k, _, ok := strings.Cut(kv, "="); !ok || strings.TrimSpace(k) == "" {
				errs = append(errs, fmt.Errorf("%s.env[%d]: want KEY=VALUE, got %q", path, j, kv))
			}
		}
	}
	return errors.Join(errs...)
}
