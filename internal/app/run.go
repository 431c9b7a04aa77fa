package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/abdulachik/spamsweep/internal/enforcer"
	"github.com/abdulachik/spamsweep/internal/scanner"
)

var notifyContext = signal.NotifyContext

// SignalContext returns a context canceled by SIGINT or SIGTERM. Once the
// context is done the signals get their default behavior back, so a second
// interrupt terminates the process.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := notifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

// Guard runs fn and persists the cursor however fn ends. A panic is logged
// with its stack and returned as an error.
func (a *App) Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("unexpected failure", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
		if perr := a.Tracker.Persist(); perr != nil && err == nil {
			err = perr
		}
	}()
	return fn()
}

// Scan loads the rules and runs one timeline pass, handling its hits.
func (a *App) Scan(ctx context.Context) (result *scanner.Result, report *enforcer.Report, err error) {
	err = a.Guard(func() error {
		if err := a.Scheduler.LoadRules(ctx); err != nil {
			return err
		}
		result, report = a.Scheduler.Pass(ctx)
		return nil
	})
	return result, report, err
}

// Serve runs the control loop until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	return a.Guard(func() error {
		return a.Scheduler.Run(ctx)
	})
}
