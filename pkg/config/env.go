package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/orb-labs/orchestrator/pkg/logger"
)

const (
	// DefaultPollInterval defines the default status poll interval in seconds
	DefaultPollInterval = 6

	// DefaultWatchTimeout defines the default watch timeout in minutes.
	// Zero keeps polling until the final operation resolves.
	DefaultWatchTimeout = 0

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultGasLimit defines the gas limit used when an operation carries none
	DefaultGasLimit = 300_000

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker in seconds
	DefaultCircuitBreakerWindow = 60

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker in seconds
	DefaultCircuitBreakerReset = 30
)

// GetEnvPollInterval returns the status poll interval from environment variables
func GetEnvPollInterval() (time.Duration, error) {
	pollInterval := os.Getenv("STATUS_POLL_INTERVAL")
	if pollInterval == "" {
		return time.Duration(DefaultPollInterval) * time.Second, nil
	}

	interval, err := strconv.Atoi(pollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid STATUS_POLL_INTERVAL value: %s, must be an integer", pollInterval)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("STATUS_POLL_INTERVAL must be greater than 0")
	}
	return time.Duration(interval) * time.Second, nil
}

// GetEnvWatchTimeout returns the watch timeout from environment variables.
// Zero disables the timeout and preserves poll-until-resolved behavior.
func GetEnvWatchTimeout() (time.Duration, error) {
	watchTimeout := os.Getenv("WATCH_TIMEOUT_MINUTES")
	if watchTimeout == "" {
		return DefaultWatchTimeout, nil
	}

	minutes, err := strconv.Atoi(watchTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid WATCH_TIMEOUT_MINUTES value: %s, must be an integer", watchTimeout)
	}
	if minutes < 0 {
		return 0, fmt.Errorf("WATCH_TIMEOUT_MINUTES must not be negative")
	}
	return time.Duration(minutes) * time.Minute, nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvDefaultGasLimit returns the fallback gas limit from environment variables
func GetEnvDefaultGasLimit() (uint64, error) {
	gasLimit := os.Getenv("DEFAULT_GAS_LIMIT")
	if gasLimit == "" {
		return DefaultGasLimit, nil
	}

	limit, err := strconv.ParseUint(gasLimit, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid DEFAULT_GAS_LIMIT value: %s, must be an unsigned integer", gasLimit)
	}
	if limit == 0 {
		return 0, fmt.Errorf("DEFAULT_GAS_LIMIT must be greater than 0")
	}
	return limit, nil
}

// GetEnvRouteEndpoint returns the route service endpoint from environment variables
func GetEnvRouteEndpoint() (string, error) {
	endpoint := os.Getenv("ROUTE_ENDPOINT")
	if endpoint == "" {
		return "", nil
	}

	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return "", fmt.Errorf("invalid ROUTE_ENDPOINT value: %s, must be a valid URL", endpoint)
	}
	return endpoint, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	enabled := os.Getenv("CIRCUIT_BREAKER_ENABLED")
	if enabled == "" {
		return DefaultCircuitBreakerEnabled, nil
	}

	if enabled == "true" {
		return true, nil
	} else if enabled == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid CIRCUIT_BREAKER_ENABLED value: %s, must be 'true' or 'false'", enabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	window := os.Getenv("CIRCUIT_BREAKER_WINDOW")
	if window == "" {
		return DefaultCircuitBreakerWindow * time.Second, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(window)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_WINDOW value: %s, must be a valid duration string", window)
	}
	return parsed, nil
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	reset := os.Getenv("CIRCUIT_BREAKER_RESET")
	if reset == "" {
		return DefaultCircuitBreakerReset * time.Second, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(reset)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_RESET value: %s, must be a valid duration string", reset)
	}
	return parsed, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "":
		return logger.InfoLevel, nil
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of 'debug', 'info', 'notice', 'error'", level)
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	coloring := os.Getenv("LOG_COLORING")
	if coloring == "" {
		return true, nil
	}

	if coloring == "true" {
		return true, nil
	} else if coloring == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid LOG_COLORING value: %s, must be 'true' or 'false'", coloring)
}
