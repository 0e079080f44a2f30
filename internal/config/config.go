// Package config provides configuration management for the RNG monitor.
// Configuration is loaded from environment variables with sensible
// defaults; a .env file may be loaded beforehand by the caller.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment constants define the application runtime environments.
const (
	EnvironmentDevelopment = "dev"
	EnvironmentProduction  = "prod"
)

// Entropy source kinds.
const (
	SourceOS     = "os"
	SourceSerial = "serial"
)

const (
	defaultMetricsBind   = "127.0.0.1:8000"
	defaultSampleBits    = 20000
	minSampleBits        = 100 // hard floor of the monobit statistic
	defaultBlockLen      = 20
	defaultInterval      = 10 * time.Second
	defaultSerialBaud    = 115200
	defaultSerialTimeout = 500 * time.Millisecond
	defaultReportTopic   = "rngcheck/verdicts"
)

// Source selects and parameterises the entropy source under assessment.
type Source struct {
	Kind              string        `json:"kind"`                // "os" or "serial"
	SerialDevice      string        `json:"serial_device"`       // e.g. /dev/ttyACM0
	SerialBaud        int           `json:"serial_baud"`         // serial line rate
	SerialReadTimeout time.Duration `json:"serial_read_timeout"` // per-read timeout
}

// Monitor controls the periodic assessment loop.
type Monitor struct {
	SampleBits int           `json:"sample_bits"` // bits drawn per test per round
	BlockLen   int           `json:"block_len"`   // block frequency block length
	Interval   time.Duration `json:"interval"`    // time between rounds
}

// Metrics contains Prometheus metrics server configuration.
type Metrics struct {
	Bind          string `json:"bind"`
	Enabled       bool   `json:"enabled"`
	TLSEnabled    bool   `json:"tls_enabled"`
	TLSCertFile   string `json:"tls_cert_file"`
	TLSKeyFile    string `json:"tls_key_file"`
	TLSCAFile     string `json:"tls_ca_file"`
	TLSClientAuth string `json:"tls_client_auth"` // "none", "request" or "require"
}

// Report contains MQTT verdict publishing configuration.
type Report struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"` // e.g. "tcp://localhost:1883"
	ClientID  string `json:"client_id"`  // auto-generated if empty
	Topic     string `json:"topic"`
	QoS       byte   `json:"qos"` // 0 or 1
	Username  string `json:"username"`
	Password  string `json:"password"`
	TLSCAFile string `json:"tls_ca_file"`
}

// Config is the root configuration for the monitor binary.
type Config struct {
	Environment string  `json:"environment"`
	Source      Source  `json:"source"`
	Monitor     Monitor `json:"monitor"`
	Metrics     Metrics `json:"metrics"`
	Report      Report  `json:"report"`
}

// Load builds the configuration from environment variables layered over
// defaults, then validates it.
func Load() (Config, error) {
	configuration := Config{
		Environment: EnvironmentDevelopment,
		Source: Source{
			Kind:              SourceOS,
			SerialBaud:        defaultSerialBaud,
			SerialReadTimeout: defaultSerialTimeout,
		},
		Monitor: Monitor{
			SampleBits: defaultSampleBits,
			BlockLen:   defaultBlockLen,
			Interval:   defaultInterval,
		},
		Metrics: Metrics{
			Bind:    defaultMetricsBind,
			Enabled: true,
		},
		Report: Report{
			BrokerURL: "tcp://127.0.0.1:1883",
			Topic:     defaultReportTopic,
			QoS:       0,
		},
	}

	applyEnvironmentEnvVars(&configuration)
	applySourceEnvVars(&configuration)
	applyMonitorEnvVars(&configuration)
	applyMetricsEnvVars(&configuration)
	applyReportEnvVars(&configuration)

	if err := validate(&configuration); err != nil {
		return configuration, err
	}

	return configuration, nil
}

func applyEnvironmentEnvVars(configuration *Config) {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		configuration.Environment = strings.ToLower(cleanEnvValue(v))
	}
}

// applySourceEnvVars reads entropy source selection. Serial parameters use
// the conventional SERIAL_* names so a hardware RNG deployment can share
// its environment with other serial tooling.
func applySourceEnvVars(configuration *Config) {
	if v := os.Getenv("SOURCE_KIND"); v != "" {
		configuration.Source.Kind = strings.ToLower(cleanEnvValue(v))
	}

	configuration.Source.SerialDevice = GetEnvDefault("SERIAL_DEVICE_NAME", configuration.Source.SerialDevice)
	configuration.Source.SerialBaud = ParsePositiveEnvInt("SERIAL_BAUD_RATE", configuration.Source.SerialBaud)
	configuration.Source.SerialReadTimeout = ParseDurationEnv("SERIAL_READ_TIMEOUT", configuration.Source.SerialReadTimeout)
}

// applyMonitorEnvVars reads assessment loop parameters. MONITOR_SAMPLE_BITS
// below the monobit hard floor of 100 is clamped with a warning.
func applyMonitorEnvVars(configuration *Config) {
	configuration.Monitor.SampleBits = ParsePositiveEnvInt("MONITOR_SAMPLE_BITS", configuration.Monitor.SampleBits)
	if configuration.Monitor.SampleBits < minSampleBits {
		log.Printf("config: MONITOR_SAMPLE_BITS (%d) below minimum (%d), clamping to min",
			configuration.Monitor.SampleBits, minSampleBits)
		configuration.Monitor.SampleBits = minSampleBits
	}

	configuration.Monitor.BlockLen = ParsePositiveEnvInt("MONITOR_BLOCK_LEN", configuration.Monitor.BlockLen)
	configuration.Monitor.Interval = ParseDurationEnv("MONITOR_INTERVAL", configuration.Monitor.Interval)
}

func applyMetricsEnvVars(configuration *Config) {
	configuration.Metrics.Bind = GetEnvDefault("METRICS_BIND", configuration.Metrics.Bind)
	configuration.Metrics.Enabled = ParseBoolEnv("METRICS_ENABLED", configuration.Metrics.Enabled)

	configuration.Metrics.TLSEnabled = ParseBoolEnv("METRICS_TLS_ENABLED", configuration.Metrics.TLSEnabled)
	configuration.Metrics.TLSCertFile = GetEnvDefault("METRICS_TLS_CERT_FILE", os.Getenv("TLS_CERT_FILE"))
	configuration.Metrics.TLSKeyFile = GetEnvDefault("METRICS_TLS_KEY_FILE", os.Getenv("TLS_KEY_FILE"))
	configuration.Metrics.TLSCAFile = GetEnvDefault("METRICS_TLS_CA_FILE", os.Getenv("TLS_CA_FILE"))

	if v := os.Getenv("METRICS_TLS_CLIENT_AUTH"); v != "" {
		configuration.Metrics.TLSClientAuth = strings.ToLower(strings.TrimSpace(v))
	} else {
		configuration.Metrics.TLSClientAuth = "none"
	}
}

func applyReportEnvVars(configuration *Config) {
	configuration.Report.Enabled = ParseBoolEnv("REPORT_ENABLED", configuration.Report.Enabled)
	configuration.Report.BrokerURL = GetEnvDefault("MQTT_BROKER_URL", configuration.Report.BrokerURL)
	configuration.Report.ClientID = GetEnvDefault("MQTT_CLIENT_ID", configuration.Report.ClientID)
	configuration.Report.Topic = GetEnvDefault("MQTT_TOPIC", configuration.Report.Topic)
	configuration.Report.Username = GetEnvDefault("MQTT_USERNAME", configuration.Report.Username)
	configuration.Report.Password = GetEnvDefault("MQTT_PASSWORD", configuration.Report.Password)
	configuration.Report.TLSCAFile = GetEnvDefault("MQTT_TLS_CA_FILE", configuration.Report.TLSCAFile)

	if v := os.Getenv("MQTT_QOS"); v != "" {
		qos, err := strconv.Atoi(cleanEnvValue(v))
		if err != nil || qos < 0 || qos > 1 {
			log.Printf("config: MQTT_QOS invalid (%q), using QoS 0", v)
			qos = 0
		}
		configuration.Report.QoS = byte(qos)
	}
}

// validate rejects configurations the monitor cannot run with.
func validate(configuration *Config) error {
	switch configuration.Environment {
	case EnvironmentDevelopment, EnvironmentProduction:
	default:
		return fmt.Errorf("config: unknown ENVIRONMENT %q (expected %q or %q)",
			configuration.Environment, EnvironmentDevelopment, EnvironmentProduction)
	}

	switch configuration.Source.Kind {
	case SourceOS:
	case SourceSerial:
		if configuration.Source.SerialDevice == "" {
			return fmt.Errorf("config: SERIAL_DEVICE_NAME required for source kind %q", SourceSerial)
		}
	default:
		return fmt.Errorf("config: unknown SOURCE_KIND %q (expected %q or %q)",
			configuration.Source.Kind, SourceOS, SourceSerial)
	}

	if configuration.Monitor.BlockLen > configuration.Monitor.SampleBits {
		return fmt.Errorf("config: MONITOR_BLOCK_LEN (%d) exceeds MONITOR_SAMPLE_BITS (%d)",
			configuration.Monitor.BlockLen, configuration.Monitor.SampleBits)
	}

	if configuration.Monitor.Interval <= 0 {
		return fmt.Errorf("config: MONITOR_INTERVAL must be positive, got %s", configuration.Monitor.Interval)
	}

	if configuration.Report.Enabled {
		if configuration.Report.BrokerURL == "" {
			return fmt.Errorf("config: MQTT_BROKER_URL required when REPORT_ENABLED")
		}
		if configuration.Report.Topic == "" {
			return fmt.Errorf("config: MQTT_TOPIC required when REPORT_ENABLED")
		}
	}

	return nil
}

// cleanEnvValue strips surrounding whitespace and inline comments from an
// environment variable value.
func cleanEnvValue(value string) string {
	cleaned := strings.TrimSpace(value)
	if idx := strings.Index(cleaned, "#"); idx >= 0 {
		cleaned = strings.TrimSpace(cleaned[:idx])
	}
	return cleaned
}

// GetEnvDefault reads a string environment variable, returning the
// fallback when it is unset or empty after cleaning.
func GetEnvDefault(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		cleaned := cleanEnvValue(value)
		if cleaned != "" {
			return cleaned
		}
	}
	return fallback
}

// ParsePositiveEnvInt reads an integer environment variable with
// validation. Returns the fallback if the variable is unset, invalid, or
// non-positive; invalid values are logged before falling back.
func ParsePositiveEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	cleaned := cleanEnvValue(value)
	if cleaned == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(cleaned)
	if err != nil {
		log.Printf("config: %s invalid (%q), using fallback %d", key, value, fallback)
		return fallback
	}
	if parsed <= 0 {
		log.Printf("config: %s non-positive (%d), using fallback %d", key, parsed, fallback)
		return fallback
	}
	return parsed
}

// ParseBoolEnv reads a boolean environment variable, accepting the usual
// truthy and falsy spellings. Returns the fallback for anything else.
func ParseBoolEnv(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	cleaned := cleanEnvValue(value)
	if cleaned == "" {
		return fallback
	}
	switch strings.ToLower(cleaned) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		log.Printf("config: %s has unrecognised boolean value %q, using fallback %v", key, value, fallback)
		return fallback
	}
}

// ParseDurationEnv reads a duration environment variable. Values must
// include a unit suffix (e.g. "500ms", "30s", "5m"). Returns the fallback
// if the variable is unset, invalid, or negative.
func ParseDurationEnv(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	cleaned := cleanEnvValue(value)
	if cleaned == "" {
		return fallback
	}

	hasUnit := false
	for i := 0; i < len(cleaned); i++ {
		ch := cleaned[i]
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') {
			hasUnit = true
			break
		}
	}
	if !hasUnit {
		log.Printf("config: %s missing duration unit (%q), using fallback %s", key, value, fallback)
		return fallback
	}

	parsed, err := time.ParseDuration(cleaned)
	if err != nil {
		log.Printf("config: %s invalid (%q), using fallback %s", key, value, fallback)
		return fallback
	}
	if parsed < 0 {
		log.Printf("config: %s negative (%s), using fallback %s", key, parsed, fallback)
		return fallback
	}
	return parsed
}
