package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"

	"kidchat/internal/app"
	"kidchat/internal/client"
	"kidchat/internal/core"
	"kidchat/internal/progression"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app.App, args []string, out io.Writer) error
}

var commands = map[string]command{
	"status":          {"Show where the app would land at start", cmdStatus},
	"login":           {"Log in as a child or parent", cmdLogin},
	"logout":          {"Clear the stored session", cmdLogout},
	"set-child":       {"Switch the parent's active child", cmdSetChild},
	"select-level":    {"Select a level in a game", cmdSelectLevel},
	"start":           {"Start a game at the current level", cmdStart},
	"progress":        {"Show a child's progress in a game", cmdProgress},
	"current-game":    {"Show the stored game session", cmdCurrentGame},
	"music":           {"Control background music: play, pause, resume, toggle, stop", cmdMusic},
	"forgot-password": {"Request a password reset code", cmdForgotPassword},
	"verify-reset":    {"Set a new password with the reset code", cmdVerifyReset},
	"change-password": {"Change the logged-in parent's password", cmdChangePassword},
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func cmdStatus(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	route := a.Session.CheckAuthStatus(ctx)
	fmt.Fprintf(out, "route: %s\n", route)
	if route == core.RouteLogin {
		return nil
	}

	s, err := a.Session.Current(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "role: %s\n", s.Role)
	fmt.Fprintf(out, "logged in: %s\n", s.LoginTime.Format("2006-01-02 15:04:05"))
	if s.ChildID != 0 {
		fmt.Fprintf(out, "child: %d\n", s.ChildID)
	}
	if s.ParentID != 0 {
		fmt.Fprintf(out, "parent: %d\n", s.ParentID)
	}
	if s.Role == core.RoleParent {
		var profile struct {
			Children []client.ChildSummary `json:"children"`
		}
		if err := json.Unmarshal(s.Profile, &profile); err == nil {
			for _, c := range profile.Children {
				fmt.Fprintf(out, "  child %d: %s (%s)\n", c.ChildID, c.Fullname, c.Username)
			}
		}
	}
	return nil
}

func cmdLogin(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("login", out)
	roleName := fs.String("role", string(core.RoleChild), "child or parent")
	user := fs.String("user", "", "Username (child) or email (parent)")
	password := fs.String("password", "", "Password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	role, err := core.ParseRole(*roleName)
	if err != nil {
		return err
	}
	if *user == "" || *password == "" {
		return fmt.Errorf("%w: -user and -password are required", errUsage)
	}

	route, err := a.Session.LoginWithCredentials(ctx, role, *user, *password)
	if err != nil {
		if errors.Is(err, client.ErrAccountBlocked) {
			fmt.Fprintln(out, "This account has been blocked by a parent.")
		}
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Fprintf(out, "route: %s\n", route)

	if route == core.RouteChildHome {
		a.Audio.LoadAndPlay(ctx)
		fmt.Fprintf(out, "music: %s\n", musicState(a))
	}
	return nil
}

func cmdLogout(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	a.Audio.Unload(ctx)
	a.Session.Logout(ctx)
	fmt.Fprintln(out, "logged out")
	return nil
}

func cmdSetChild(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("set-child", out)
	childID := fs.Int64("child", 0, "Child ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.Session.SetActiveChild(ctx, *childID); err != nil {
		return err
	}
	fmt.Fprintf(out, "active child: %d\n", *childID)
	return nil
}

// gameFlags registers the flags shared by the game commands
func gameFlags(fs *flag.FlagSet) (game *string, child *int64) {
	game = fs.String("game", string(core.VariantFruits), "fruits, spelling or mystery")
	child = fs.Int64("child", 0, "Child ID (defaults to the session's active child)")
	return game, child
}

func resolveGame(ctx context.Context, a *app.App, game string, child int64) (core.GameVariant, int64, error) {
	variant, err := core.ParseGameVariant(game)
	if err != nil {
		return "", 0, err
	}
	if child != 0 {
		return variant, child, nil
	}
	id, err := a.ActiveChild(ctx)
	if err != nil {
		return "", 0, err
	}
	return variant, id, nil
}

func cmdSelectLevel(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("select-level", out)
	game, child := gameFlags(fs)
	level := fs.Int("level", 1, "Level number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	variant, childID, err := resolveGame(ctx, a, *game, *child)
	if err != nil {
		return err
	}

	gs, err := a.Gate.SelectLevel(ctx, childID, variant, *level)
	if err != nil {
		var locked *progression.LevelLockedError
		if errors.As(err, &locked) {
			fmt.Fprintf(out, "locked: %s\n", locked.Message)
		}
		return err
	}
	printGameSession(out, gs)
	return nil
}

func cmdStart(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("start", out)
	game, child := gameFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	variant, childID, err := resolveGame(ctx, a, *game, *child)
	if err != nil {
		return err
	}

	gs, err := a.Gate.StartDefault(ctx, childID, variant)
	if err != nil {
		return err
	}
	printGameSession(out, gs)
	return nil
}

func cmdProgress(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("progress", out)
	game, child := gameFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	variant, childID, err := resolveGame(ctx, a, *game, *child)
	if err != nil {
		return err
	}

	p, err := a.Gate.FetchProgress(ctx, childID, variant)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "child: %d (%s)\n", childID, p.Username)
	fmt.Fprintf(out, "game: %s\n", variant)
	fmt.Fprintf(out, "current level: %d\n", p.CurrentLevel)
	fmt.Fprintf(out, "next unlock: %d\n", p.NextUnlockLevel)
	if p.TotalLevels > 0 {
		fmt.Fprintf(out, "total levels: %d\n", p.TotalLevels)
	}
	levels := make([]int, 0, len(p.PointsPerLevel))
	for l := range p.PointsPerLevel {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	for _, l := range levels {
		fmt.Fprintf(out, "  level %d: %d points\n", l, p.PointsPerLevel[l])
	}
	return nil
}

func cmdCurrentGame(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("current-game", out)
	child := fs.Int64("child", 0, "Child ID (defaults to the session's active child)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	childID := *child
	if childID == 0 {
		id, err := a.ActiveChild(ctx)
		if err != nil {
			return err
		}
		childID = id
	}

	gs, err := a.Gate.Current(ctx, childID)
	if err != nil {
		return err
	}
	printGameSession(out, gs)
	return nil
}

func printGameSession(out io.Writer, gs *core.GameSession) {
	fmt.Fprintf(out, "game session: %s\n", gs.SessionID)
	fmt.Fprintf(out, "child: %d\n", gs.ChildID)
	fmt.Fprintf(out, "game: %s\n", gs.Variant)
}

func cmdMusic(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: music play|pause|resume|toggle|stop", errUsage)
	}
	switch args[0] {
	case "play":
		a.Audio.LoadAndPlay(ctx)
	case "pause":
		a.Audio.Pause(ctx)
	case "resume":
		a.Audio.Resume(ctx)
	case "toggle":
		a.Audio.Toggle(ctx)
	case "stop":
		a.Audio.Unload(ctx)
	default:
		return fmt.Errorf("%w: unknown music action %q", errUsage, args[0])
	}
	fmt.Fprintf(out, "music: %s\n", musicState(a))
	return nil
}

func musicState(a *app.App) string {
	switch {
	case a.Audio.IsPlaying():
		return "playing"
	case a.Audio.IsLoaded():
		return "paused"
	default:
		return "stopped"
	}
}

func cmdForgotPassword(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("forgot-password", out)
	roleName := fs.String("role", string(core.RoleChild), "child or parent")
	user := fs.String("user", "", "Username (child) or email (parent)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	role, err := core.ParseRole(*roleName)
	if err != nil {
		return err
	}
	if *user == "" {
		return fmt.Errorf("%w: -user is required", errUsage)
	}

	if role == core.RoleChild {
		err = a.Session.RequestChildReset(ctx, *user)
	} else {
		err = a.Session.RequestParentReset(ctx, *user)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "reset code sent")
	return nil
}

func cmdVerifyReset(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("verify-reset", out)
	otp := fs.String("otp", "", "Reset code")
	password := fs.String("password", "", "New password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *otp == "" || *password == "" {
		return fmt.Errorf("%w: -otp and -password are required", errUsage)
	}

	if err := a.Session.VerifyReset(ctx, *otp, *password); err != nil {
		return err
	}
	fmt.Fprintln(out, "password updated")
	return nil
}

func cmdChangePassword(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("change-password", out)
	oldPassword := fs.String("old", "", "Current password")
	newPassword := fs.String("new", "", "New password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *oldPassword == "" || *newPassword == "" {
		return fmt.Errorf("%w: -old and -new are required", errUsage)
	}

	if err := a.Session.ChangeParentPassword(ctx, *oldPassword, *newPassword); err != nil {
		return err
	}
	fmt.Fprintln(out, "password changed")
	return nil
}
