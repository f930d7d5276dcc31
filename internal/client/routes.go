package client

import (
	"fmt"
	"strconv"

	"kidchat/internal/core"

	"github.com/yosida95/uritemplate/v3"
)

// gameRoutes holds the per-variant endpoint templates. The backend grew
// each mini-game separately, so path and query names differ between them.
type gameRoutes struct {
	selectLevel *uritemplate.Template
	start       *uritemplate.Template
	progress    *uritemplate.Template
}

var routes = map[core.GameVariant]gameRoutes{
	core.VariantFruits: {
		selectLevel: uritemplate.MustNew("/game/select_level/{child_id}{?desired_level}"),
		start:       uritemplate.MustNew("/game/start{?child_id}"),
		progress:    uritemplate.MustNew("/game/progress/{child_id}"),
	},
	core.VariantMystery: {
		selectLevel: uritemplate.MustNew("/mind-mystery/Select_level{?child_id,selected_level}"),
		start:       uritemplate.MustNew("/mind-mystery/start{?child_id}"),
		progress:    uritemplate.MustNew("/mind-mystery/progress/{child_id}"),
	},
	core.VariantSpelling: {
		selectLevel: uritemplate.MustNew("/game/select_level/spell/{child_id}{?desired_level}"),
		start:       uritemplate.MustNew("/game/start/spell{?child_id}"),
		progress:    uritemplate.MustNew("/game/progress/spell/{child_id}"),
	},
}

// Route kinds for GamePath
const (
	RouteSelectLevel = "select_level"
	RouteStart       = "start"
	RouteProgress    = "progress"
)

// GamePath expands the endpoint path for a variant. level is ignored by
// routes that do not take one.
func GamePath(variant core.GameVariant, kind string, childID int64, level int) (string, error) {
	r, ok := routes[variant]
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidVariant, variant)
	}

	var tmpl *uritemplate.Template
	switch kind {
	case RouteSelectLevel:
		tmpl = r.selectLevel
	case RouteStart:
		tmpl = r.start
	case RouteProgress:
		tmpl = r.progress
	default:
		return "", fmt.Errorf("unknown route %q", kind)
	}

	vars := uritemplate.Values{}
	vars.Set("child_id", uritemplate.String(strconv.FormatInt(childID, 10)))
	lvl := uritemplate.String(strconv.Itoa(level))
	vars.Set("desired_level", lvl)
	vars.Set("selected_level", lvl)

	path, err := tmpl.Expand(vars)
	if err != nil {
		return "", fmt.Errorf("failed to expand %s route: %w", kind, err)
	}
	return path, nil
}
