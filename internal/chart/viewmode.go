package chart

import (
	"fmt"
	"strings"
)

type ViewMode string

const (
	ModeCompact    ViewMode = "compact"
	ModeDefault    ViewMode = "default"
	ModeExpanded   ViewMode = "expanded"
	ModeFullscreen ViewMode = "fullscreen"
)

const (
	fullscreenChrome   = 120
	fullscreenFallback = 680
)

func ParseViewMode(raw string) (ViewMode, error) {
	switch mode := ViewMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ModeCompact, ModeDefault, ModeExpanded, ModeFullscreen:
		return mode, nil
	case "":
		return ModeDefault, nil
	default:
		return "", fmt.Errorf("unknown view mode %q", raw)
	}
}

// Height is the chart height in pixels. viewportHeight is only used in
// fullscreen; 0 means unknown.
func (m ViewMode) Height(viewportHeight int) int {
	switch m {
	case ModeCompact:
		return 300
	case ModeExpanded:
		return 560
	case ModeFullscreen:
		if viewportHeight > fullscreenChrome {
			return viewportHeight - fullscreenChrome
		}
		return fullscreenFallback
	default:
		return 420
	}
}

func (m ViewMode) ToggleFullscreen() ViewMode {
	if m == ModeFullscreen {
		return ModeDefault
	}
	return ModeFullscreen
}
