package config

import (
	"strings"
	"testing"
	"time"
)

// clearConfigEnv blanks every variable Load reads so tests start from the
// defaults regardless of the surrounding environment.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT",
		"SOURCE_KIND", "SERIAL_DEVICE_NAME", "SERIAL_BAUD_RATE", "SERIAL_READ_TIMEOUT",
		"MONITOR_SAMPLE_BITS", "MONITOR_BLOCK_LEN", "MONITOR_INTERVAL",
		"METRICS_BIND", "METRICS_ENABLED", "METRICS_TLS_ENABLED",
		"METRICS_TLS_CERT_FILE", "METRICS_TLS_KEY_FILE", "METRICS_TLS_CA_FILE",
		"METRICS_TLS_CLIENT_AUTH",
		"TLS_CERT_FILE", "TLS_KEY_FILE", "TLS_CA_FILE",
		"REPORT_ENABLED", "MQTT_BROKER_URL", "MQTT_CLIENT_ID", "MQTT_TOPIC",
		"MQTT_QOS", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_TLS_CA_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Environment != EnvironmentDevelopment {
		t.Errorf("Environment = %q, want %q", cfg.Environment, EnvironmentDevelopment)
	}
	if cfg.Source.Kind != SourceOS {
		t.Errorf("Source.Kind = %q, want %q", cfg.Source.Kind, SourceOS)
	}
	if cfg.Monitor.SampleBits != defaultSampleBits {
		t.Errorf("Monitor.SampleBits = %d, want %d", cfg.Monitor.SampleBits, defaultSampleBits)
	}
	if cfg.Monitor.BlockLen != defaultBlockLen {
		t.Errorf("Monitor.BlockLen = %d, want %d", cfg.Monitor.BlockLen, defaultBlockLen)
	}
	if cfg.Monitor.Interval != defaultInterval {
		t.Errorf("Monitor.Interval = %s, want %s", cfg.Monitor.Interval, defaultInterval)
	}
	if cfg.Metrics.Bind != defaultMetricsBind {
		t.Errorf("Metrics.Bind = %q, want %q", cfg.Metrics.Bind, defaultMetricsBind)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if cfg.Metrics.TLSClientAuth != "none" {
		t.Errorf("Metrics.TLSClientAuth = %q, want %q", cfg.Metrics.TLSClientAuth, "none")
	}
	if cfg.Report.Enabled {
		t.Error("Report.Enabled = true, want false")
	}
	if cfg.Report.Topic != defaultReportTopic {
		t.Errorf("Report.Topic = %q, want %q", cfg.Report.Topic, defaultReportTopic)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("ENVIRONMENT", "PROD")
	t.Setenv("SOURCE_KIND", "serial")
	t.Setenv("SERIAL_DEVICE_NAME", "/dev/ttyACM0")
	t.Setenv("SERIAL_BAUD_RATE", "9600")
	t.Setenv("SERIAL_READ_TIMEOUT", "250ms")
	t.Setenv("MONITOR_SAMPLE_BITS", "4096")
	t.Setenv("MONITOR_BLOCK_LEN", "128")
	t.Setenv("MONITOR_INTERVAL", "30s")
	t.Setenv("METRICS_BIND", "0.0.0.0:9000")
	t.Setenv("REPORT_ENABLED", "yes")
	t.Setenv("MQTT_BROKER_URL", "ssl://broker.example.com:8883")
	t.Setenv("MQTT_TOPIC", "lab/rng")
	t.Setenv("MQTT_QOS", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Environment != EnvironmentProduction {
		t.Errorf("Environment = %q, want %q", cfg.Environment, EnvironmentProduction)
	}
	if cfg.Source.Kind != SourceSerial {
		t.Errorf("Source.Kind = %q, want %q", cfg.Source.Kind, SourceSerial)
	}
	if cfg.Source.SerialDevice != "/dev/ttyACM0" {
		t.Errorf("Source.SerialDevice = %q, want /dev/ttyACM0", cfg.Source.SerialDevice)
	}
	if cfg.Source.SerialBaud != 9600 {
		t.Errorf("Source.SerialBaud = %d, want 9600", cfg.Source.SerialBaud)
	}
	if cfg.Source.SerialReadTimeout != 250*time.Millisecond {
		t.Errorf("Source.SerialReadTimeout = %s, want 250ms", cfg.Source.SerialReadTimeout)
	}
	if cfg.Monitor.SampleBits != 4096 {
		t.Errorf("Monitor.SampleBits = %d, want 4096", cfg.Monitor.SampleBits)
	}
	if cfg.Monitor.BlockLen != 128 {
		t.Errorf("Monitor.BlockLen = %d, want 128", cfg.Monitor.BlockLen)
	}
	if cfg.Monitor.Interval != 30*time.Second {
		t.Errorf("Monitor.Interval = %s, want 30s", cfg.Monitor.Interval)
	}
	if !cfg.Report.Enabled {
		t.Error("Report.Enabled = false, want true")
	}
	if cfg.Report.BrokerURL != "ssl://broker.example.com:8883" {
		t.Errorf("Report.BrokerURL = %q", cfg.Report.BrokerURL)
	}
	if cfg.Report.QoS != 1 {
		t.Errorf("Report.QoS = %d, want 1", cfg.Report.QoS)
	}
}

func TestLoadClampsSampleBits(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("MONITOR_SAMPLE_BITS", "64")
	t.Setenv("MONITOR_BLOCK_LEN", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Monitor.SampleBits != minSampleBits {
		t.Errorf("Monitor.SampleBits = %d, want clamped to %d", cfg.Monitor.SampleBits, minSampleBits)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown environment",
			env:     map[string]string{"ENVIRONMENT": "staging"},
			wantErr: "unknown ENVIRONMENT",
		},
		{
			name:    "unknown source kind",
			env:     map[string]string{"SOURCE_KIND": "quantum"},
			wantErr: "unknown SOURCE_KIND",
		},
		{
			name:    "serial source without device",
			env:     map[string]string{"SOURCE_KIND": "serial"},
			wantErr: "SERIAL_DEVICE_NAME required",
		},
		{
			name: "block longer than sample",
			env: map[string]string{
				"MONITOR_SAMPLE_BITS": "200",
				"MONITOR_BLOCK_LEN":   "500",
			},
			wantErr: "MONITOR_BLOCK_LEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportFields(t *testing.T) {
	cfg := Config{
		Environment: EnvironmentProduction,
		Source:      Source{Kind: SourceOS},
		Monitor:     Monitor{SampleBits: 1000, BlockLen: 20, Interval: time.Second},
		Report:      Report{Enabled: true, BrokerURL: "tcp://h:1883"},
	}
	if err := validate(&cfg); err == nil || !strings.Contains(err.Error(), "MQTT_TOPIC") {
		t.Errorf("validate() = %v, want MQTT_TOPIC error", err)
	}

	cfg.Report.Topic = "lab/rng"
	cfg.Report.BrokerURL = ""
	if err := validate(&cfg); err == nil || !strings.Contains(err.Error(), "MQTT_BROKER_URL") {
		t.Errorf("validate() = %v, want MQTT_BROKER_URL error", err)
	}
}

func TestCleanEnvValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"  padded  ", "padded"},
		{"value # trailing comment", "value"},
		{"# all comment", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanEnvValue(tt.in); got != tt.want {
			t.Errorf("cleanEnvValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePositiveEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := ParsePositiveEnvInt("TEST_INT", 7); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	t.Setenv("TEST_INT", "-3")
	if got := ParsePositiveEnvInt("TEST_INT", 7); got != 7 {
		t.Errorf("negative value: got %d, want fallback 7", got)
	}
	t.Setenv("TEST_INT", "nonsense")
	if got := ParsePositiveEnvInt("TEST_INT", 7); got != 7 {
		t.Errorf("invalid value: got %d, want fallback 7", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"1", false, true},
		{"true", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"0", true, false},
		{"false", true, false},
		{"off", true, false},
		{"maybe", true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Setenv("TEST_BOOL", tt.value)
		if got := ParseBoolEnv("TEST_BOOL", tt.fallback); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.fallback, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("TEST_DUR", "1500ms")
	if got := ParseDurationEnv("TEST_DUR", time.Second); got != 1500*time.Millisecond {
		t.Errorf("got %s, want 1.5s", got)
	}
	// Bare numbers are rejected to avoid ambiguity between seconds and
	// nanoseconds.
	t.Setenv("TEST_DUR", "30")
	if got := ParseDurationEnv("TEST_DUR", time.Second); got != time.Second {
		t.Errorf("unitless value: got %s, want fallback 1s", got)
	}
	t.Setenv("TEST_DUR", "-5s")
	if got := ParseDurationEnv("TEST_DUR", time.Second); got != time.Second {
		t.Errorf("negative value: got %s, want fallback 1s", got)
	}
}
