package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go_maintenance/internal/auth"
	"go_maintenance/internal/maintenance/lifecycle"
	"go_maintenance/internal/maintenance/store"
	"go_maintenance/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

type app struct {
	store  *store.Store
	engine *lifecycle.Engine
	out    io.Writer
	errOut io.Writer
	now    func() time.Time
}

func newApp(s *store.Store, invalidator lifecycle.Invalidator, logger *logrus.Entry, out, errOut io.Writer) *app {
	return &app{
		store: s,
		engine: lifecycle.NewEngine(&lifecycle.Config{
			Store:       s,
			Invalidator: invalidator,
			Logger:      logger,
		}),
		out:    out,
		errOut: errOut,
		now:    time.Now,
	}
}

func (a *app) dispatch(args []string) int {
	switch args[0] {
	case "status":
		return a.status(args[1:])
	case "enable":
		return a.enable(args[1:])
	case "disable":
		return a.disable(args[1:])
	case "user":
		if len(args) > 1 && args[1] == "add" {
			return a.addUser(args[2:])
		}
	}
	fmt.Fprintf(a.errOut, "unknown command %q\n", args[0])
	return exitUsage
}

func (a *app) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// actor resolves an operator by username
func (a *app) actor(ctx context.Context, username string) (lifecycle.Actor, int) {
	if username == "" {
		fmt.Fprintln(a.errOut, "--actor is required")
		return lifecycle.Actor{}, exitUsage
	}
	u, err := a.store.FindUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(a.errOut, "unknown actor %q\n", username)
		return lifecycle.Actor{}, exitUsage
	}
	if err != nil {
		fmt.Fprintf(a.errOut, "failed to resolve actor: %v\n", err)
		return lifecycle.Actor{}, exitUnavailable
	}
	return lifecycle.Actor{UserID: model.UPtr(u.ID)}, exitOK
}

func (a *app) status(args []string) int {
	if err := a.flags("status").Parse(args); err != nil {
		return exitUsage
	}

	ctx := context.Background()
	w, err := a.store.FindCurrent(ctx)
	if err != nil {
		fmt.Fprintf(a.errOut, "failed to read maintenance state: %v\n", err)
		return exitUnavailable
	}
	now := a.now()
	if w == nil || !w.WithinSchedule(now) {
		fmt.Fprintln(a.out, "System operational")
		return exitOK
	}

	until := "until further notice"
	if w.EndTime != nil {
		until = "until " + w.EndTime.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(a.out, "Maintenance active (%s): %s [window %d, %s]\n", w.Mode.Display(), w.Reason, w.ID, until)
	return exitActive
}

func (a *app) enable(args []string) int {
	fs := a.flags("enable")
	username := fs.String("actor", "", "username recorded as creator and approver")
	mode := fs.String("mode", string(model.MaintenanceModeMaintenance), "maintenance or read_only")
	reason := fs.String("reason", "System Maintenance (CLI)", "reason shown to users")
	minutes := fs.Int("minutes", 0, "duration in minutes, 0 for open ended")
	force := fs.Bool("force", false, "enable even if a window is already active")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if !model.MaintenanceMode(*mode).Valid() {
		fmt.Fprintf(a.errOut, "invalid mode %q\n", *mode)
		return exitUsage
	}
	if *minutes < 0 {
		fmt.Fprintln(a.errOut, "--minutes must not be negative")
		return exitUsage
	}

	ctx := context.Background()
	actor, code := a.actor(ctx, *username)
	if code != exitOK {
		return code
	}

	active, err := a.store.ListEnabledApproved(ctx)
	if err != nil {
		fmt.Fprintf(a.errOut, "failed to read maintenance state: %v\n", err)
		return exitUnavailable
	}
	if len(active) > 0 && !*force {
		fmt.Fprintf(a.errOut, "maintenance window %d is already active, use --force to add another\n", active[0].ID)
		return exitAlreadyActive
	}

	now := a.now()
	params := lifecycle.CreateParams{
		Mode:      model.MaintenanceMode(*mode),
		Reason:    *reason,
		StartTime: model.TPtr(now),
	}
	if *minutes > 0 {
		params.EndTime = model.TPtr(now.Add(time.Duration(*minutes) * time.Minute))
	}
	w, err := a.engine.Create(ctx, params, actor)
	if err != nil {
		fmt.Fprintf(a.errOut, "failed to create maintenance window: %v\n", err)
		if errors.Is(err, store.ErrInvalidWindow) {
			return exitUsage
		}
		return exitUnavailable
	}
	if _, err := a.engine.Approve(ctx, w.ID, actor); err != nil {
		fmt.Fprintf(a.errOut, "failed to approve maintenance window %d: %v\n", w.ID, err)
		return exitApproveFailed
	}

	fmt.Fprintf(a.out, "Maintenance window %d enabled (%s)\n", w.ID, w.Mode.Display())
	return exitOK
}

func (a *app) disable(args []string) int {
	fs := a.flags("disable")
	username := fs.String("actor", "", "username recorded on the audit trail")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx := context.Background()
	actor, code := a.actor(ctx, *username)
	if code != exitOK {
		return code
	}

	res, err := a.engine.CompleteAllActive(ctx, actor)
	if err != nil {
		fmt.Fprintf(a.errOut, "failed to list active windows: %v\n", err)
		return exitCloseFailed
	}
	for id, msg := range res.Errors {
		fmt.Fprintf(a.errOut, "window %d: %s\n", id, msg)
	}
	fmt.Fprintf(a.out, "Completed %d maintenance window(s)\n", res.Succeeded)
	if res.Failed > 0 {
		return exitCloseFailed
	}
	return exitOK
}

func (a *app) addUser(args []string) int {
	fs := a.flags("user add")
	username := fs.String("username", "", "login name")
	password := fs.String("password", "", "password")
	role := fs.String("role", auth.RoleAdmin, "admin, operator or viewer")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *username == "" {
		fmt.Fprintln(a.errOut, "--username is required")
		return exitUsage
	}
	switch *role {
	case auth.RoleAdmin, auth.RoleOperator, auth.RoleViewer:
	default:
		fmt.Fprintf(a.errOut, "invalid role %q\n", *role)
		return exitUsage
	}
	hash, err := auth.HashPassword(*password)
	if err != nil {
		fmt.Fprintln(a.errOut, err)
		return exitUsage
	}

	u := &model.User{Username: *username, PasswordHash: hash, Role: *role, Status: model.UserStatusActive}
	if err := a.store.CreateUser(context.Background(), u); err != nil {
		fmt.Fprintln(a.errOut, err)
		return exitUnavailable
	}
	fmt.Fprintf(a.out, "User %s (%s) created with id %d\n", u.Username, u.Role, u.ID)
	return exitOK
}
