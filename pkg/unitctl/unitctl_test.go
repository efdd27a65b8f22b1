package unitctl

import (
	"errors"
	"strings"
	"testing"
)

func TestParseOp(t *testing.T) {
	t.Parallel()
	cases := map[string]Op{
		"start":       OpStart,
		" Restart ":   OpRestart,
		"STOP":        OpStop,
		"try-restart": OpTryRestart,
		"reload":      OpReload,
	}
	for in, want := range cases {
		got, err := ParseOp(in)
		if err != nil || got != want {
			t.Fatalf("ParseOp(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "kill", "enable"} {
		if _, err := ParseOp(bad); err == nil {
			t.Fatalf("ParseOp(%q) should fail", bad)
		}
	}
}

func TestUnitName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"nginx":             "nginx.service",
		"nginx.service":     "nginx.service",
		" backup.timer ":    "backup.timer",
		"docker.socket":     "docker.socket",
		"app@1":             "app@1.service",
		"":                  "",
		"multi-user.target": "multi-user.target",
	}
	for in, want := range cases {
		if got := UnitName(in); got != want {
			t.Fatalf("UnitName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatusFoundAndJobError(t *testing.T) {
	t.Parallel()
	if (Status{LoadState: "not-found"}).Found() || (Status{}).Found() {
		t.Fatal("not-found and empty states should not be found")
	}
	if !(Status{LoadState: "loaded"}).Found() {
		t.Fatal("loaded unit should be found")
	}
	var err error = &JobError{Op: OpRestart, Unit: "x.service", Result: "failed"}
	var je *JobError
	if !errors.As(err, &je) || !strings.Contains(err.Error(), "restart x.service: job failed") {
		t.Fatalf("err = %v", err)
	}
}
