package log

import "log/slog"

// Level is the log severity. The default config logs at Info; the
// --verbose flag lowers it to Debug.
type Level int

const (
	// LevelDebug records per-call detail (remote budgets, reuse hits)
	LevelDebug Level = iota
	// LevelInfo records sync progress (creates, updates, short-circuits)
	LevelInfo
	// LevelWarn records recoverable conditions (divergence, rate pauses)
	LevelWarn
	// LevelError records entities and links that did not converge
	LevelError
)

// String returns the level's uppercase name
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ToSlogLevel maps a Level onto the backing slog handler's levels
func (l Level) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel reads a level name, case-insensitively, defaulting to
// Info for anything unrecognized
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "info", "INFO":
		return LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}
