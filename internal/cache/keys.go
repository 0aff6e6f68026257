package cache

import (
	"fmt"
	"strings"
	"time"

	"kisfeed/internal/config"
)

// Namespace is the Redis key prefix for the kisfeed application.
const Namespace = "kisfeed"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

// Scaled applies a multiplier to a TTL class, useful for half/double TTL variants.
func (t TTLSet) Scaled(class TTLClass, factor float64) time.Duration {
	base := t.Duration(class)
	if base <= 0 || factor <= 0 {
		return base
	}
	return time.Duration(float64(base) * factor)
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Bar Keys ---------------------------------------------------------------

// BarLatestKey stores the most recent completed bar for a symbol.
func BarLatestKey(symbol string) string {
	return formatKey("bar", "latest", symbol)
}

// BarCursorKey mirrors the completion cursor, for inspection.
func BarCursorKey(symbol string) string {
	return formatKey("bar", "cursor", symbol)
}

// --- Option Matrix Keys -----------------------------------------------------

// MatrixKey stores one metric row of the latest option matrix.
func MatrixKey(underlying, metric string) string {
	return formatKey("matrix", underlying, metric)
}

// ChainMinuteKey guards against re-ingesting the same chain minute.
func ChainMinuteKey(underlying string) string {
	return formatKey("chain", "minute", underlying)
}

// --- Signal Keys ------------------------------------------------------------

// SignalLatestKey stores the latest strategy evaluation for a symbol.
func SignalLatestKey(symbol string) string {
	return formatKey("signal", "latest", symbol)
}

// --- System Status Keys -----------------------------------------------------

// SystemStatusKey stores a component's heartbeat payload.
func SystemStatusKey(component string) string {
	return formatKey("status", component)
}

// --- TTL Helpers ------------------------------------------------------------

// BarLatestTTL returns the TTL for latest-bar payloads.
func BarLatestTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// MatrixTTL returns the TTL for matrix rows; the board refreshes each minute.
func MatrixTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// SignalTTL returns the TTL for latest-signal payloads.
func SignalTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// ChainMinuteTTL returns the TTL for chain dedup guards.
func ChainMinuteTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLShort, 0.5)
}

// StatusTTL returns the TTL for heartbeat payloads.
func StatusTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLLong)
}

// FormatCacheKey is exported for dynamic key construction when patterns
// are not covered by helpers.
func FormatCacheKey(parts ...string) string {
	return formatKey(parts...)
}

// BuildKeyWithSuffix appends an arbitrary suffix to an existing key.
func BuildKeyWithSuffix(baseKey, suffix string) string {
	if strings.TrimSpace(suffix) == "" {
		return baseKey
	}
	return fmt.Sprintf("%s:%s", baseKey, strings.TrimSpace(suffix))
}
