package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/autopilot/internal/modules/market_hours"
)

// RunMode decides whether the trading loop fires on its own
type RunMode string

const (
	ModeManual RunMode = "MANUAL"
	ModeAuto   RunMode = "AUTO"
)

// DefaultMode applies when no mode has ever been persisted
const DefaultMode = ModeAuto

var (
	// ErrInvalidMode is returned for anything other than MANUAL or AUTO
	ErrInvalidMode = errors.New("invalid run mode")
	// ErrUnknownJob is returned by TriggerNow for an unregistered job id
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned by TriggerNow while a run of the job is in progress
	ErrJobRunning = errors.New("job already running")
)

// ParseRunMode accepts MANUAL, AUTO or AUTOMATIC in any case
func ParseRunMode(s string) (RunMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MANUAL":
		return ModeManual, nil
	case "AUTO", "AUTOMATIC":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Log levels used with Persistence.AppendLog
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARNING"
	LevelError = "ERROR"
)

// Persistence is the durable store the scheduler reports into
type Persistence interface {
	AppendLog(level, component, message string, details map[string]interface{})
	GetRunMode() (RunMode, error)
	SetRunMode(mode RunMode) error
	TradesSince(since time.Time) (int, error)
	// LastReflectionEnd returns nil when no reflection exists yet
	LastReflectionEnd() (*time.Time, error)
}

// SessionSource reports the current market session
type SessionSource interface {
	Session() market_hours.Session
}

// Callback is a unit of downstream work triggered by a job
type Callback func(ctx context.Context) error

// Callbacks are the downstream actions wired in at construction. Any may be nil.
type Callbacks struct {
	Trading    Callback
	Snapshot   Callback
	Reflection Callback
	// OnModeChange is notified after a mode change has been persisted
	OnModeChange func(previous, current RunMode)
}
