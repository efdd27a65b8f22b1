package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tickd/internal/app"
)

func main() {
	var (
		cfgPath     string
		check       bool
		stopTimeout time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./tickd.yaml", "path to config (yaml or json)")
	flag.BoolVar(&check, "check", false, "validate config, print the plan schedule and exit")
	flag.DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "upper bound for graceful shutdown")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if check {
		snap, err := a.Check()
		_ = a.Stop(context.Background(), app.StopAppStop)
		if err != nil {
			fmt.Println("invalid:", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		_ = a.Stop(context.Background(), app.StopConfigError)
		os.Exit(1)
	}

	reason := app.StopUnknown
	select {
	case <-ctx.Done():
		reason = app.StopSignal
	case <-a.Done():
		switch {
		case a.Err() != nil:
			reason = app.StopFatalError
		case a.PlansDone():
			reason = app.StopPlansDone
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
