package txtracker

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by DefaultsFromEnv.
const (
	envMaxRetries       = "KEYPASS_TX_MAX_RETRIES"
	envMinConfirmations = "KEYPASS_TX_MIN_CONFIRMATIONS"
	envWatchTimeout     = "KEYPASS_TX_WATCH_TIMEOUT"
	envWaitTimeout      = "KEYPASS_TX_WAIT_TIMEOUT"
	envBackoffMode      = "KEYPASS_TX_BACKOFF_MODE"
	envBackoffBase      = "KEYPASS_TX_BACKOFF_BASE"
	envBackoffMax       = "KEYPASS_TX_BACKOFF_MAX"
	envHistoryLimit     = "KEYPASS_TX_HISTORY_LIMIT"
)

// DefaultsFromEnv builds TrackerDefaults from the process environment,
// loading a .env file first when one exists in the working directory.
// Unset variables fall back to the package defaults; malformed values are
// errors.
func DefaultsFromEnv() (TrackerDefaults, error) {
	if err := loadDotEnv(); err != nil {
		return TrackerDefaults{}, err
	}

	var d TrackerDefaults
	var err error

	if d.MaxRetries, err = intEnv(envMaxRetries, DefaultMaxRetries); err != nil {
		return TrackerDefaults{}, err
	}
	if d.MinConfirmations, err = intEnv(envMinConfirmations, DefaultMinConfirmations); err != nil {
		return TrackerDefaults{}, err
	}
	if d.WatchTimeout, err = durationEnv(envWatchTimeout, DefaultWatchTimeout); err != nil {
		return TrackerDefaults{}, err
	}
	if d.WaitTimeout, err = durationEnv(envWaitTimeout, DefaultWaitTimeout); err != nil {
		return TrackerDefaults{}, err
	}
	if d.HistoryLimit, err = intEnv(envHistoryLimit, DefaultHistoryLimit); err != nil {
		return TrackerDefaults{}, err
	}

	mode := os.Getenv(envBackoffMode)
	switch mode {
	case "", string(BackoffExponential):
		d.Backoff.Mode = BackoffExponential
	case string(BackoffLinear):
		d.Backoff.Mode = BackoffLinear
	default:
		return TrackerDefaults{}, fmt.Errorf("%s: unknown backoff mode %q", envBackoffMode, mode)
	}
	if d.Backoff.Base, err = durationEnv(envBackoffBase, DefaultBackoffBase); err != nil {
		return TrackerDefaults{}, err
	}
	if d.Backoff.Max, err = durationEnv(envBackoffMax, DefaultBackoffMax); err != nil {
		return TrackerDefaults{}, err
	}

	return d, nil
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(".env")
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
