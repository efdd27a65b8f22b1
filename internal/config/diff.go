package config

import (
	"sort"
	"strings"

	logx "tickd/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured attrs for logging, and (3) the names of plans that were
// added, removed or modified.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.journal_enabled", newCfg.Logging.Journal.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Reactor.Timezone) != strings.TrimSpace(newCfg.Reactor.Timezone) ||
		oldCfg.Reactor.StartupSpread != newCfg.Reactor.StartupSpread {
		changed = append(changed, "reactor")
		attrs = append(attrs,
			logx.String("reactor.timezone", strings.TrimSpace(newCfg.Reactor.Timezone)),
			logx.Bool("reactor.startup_spread", newCfg.Reactor.StartupSpread),
		)
	}

	// Nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Int("storage.retain", nS.Retain),
		)
	}

	var oH, nH HTTPConfig
	if oldCfg.HTTP != nil {
		oH = *oldCfg.HTTP
	}
	if newCfg.HTTP != nil {
		nH = *newCfg.HTTP
	}
	if oH != nH {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.listen", strings.TrimSpace(nH.Listen)),
			logx.Bool("http.token_set", nH.Token != ""),
			logx.Bool("http.pprof", nH.Pprof),
		)
	}

	planChanged := diffPlans(oldCfg.Plans, newCfg.Plans)
	if len(planChanged) > 0 {
		changed = append(changed, "plans")
		attrs = append(attrs,
			logx.Int("plans.changed_count", len(planChanged)),
			logx.Int("plans.count", len(newCfg.Plans)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, planChanged
}

func diffPlans(oldP, newP []PlanConfig) []string {
	index := func(ps []PlanConfig) map[string]uint64 {
		m := make(map[string]uint64, len(ps))
		for _, p := range ps {
			m[strings.TrimSpace(p.Name)] = hashJSON(p)
		}
		return m
	}
	o, n := index(oldP), index(newP)

	set := map[string]struct{}{}
	for k := range o {
		set[k] = struct{}{}
	}
	for k := range n {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		oh, inOld := o[name]
		nh, inNew := n[name]
		if inOld != inNew || oh != nh {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
