// Package report publishes assessment verdicts to an MQTT broker so that
// downstream consumers (dashboards, alerting) can act on generator health
// without scraping metrics. It wraps the Eclipse Paho library, handles
// automatic reconnection and supports optional TLS transport.
package report

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ryankurte/rngcheck/internal/metrics"
	"github.com/ryankurte/rngcheck/internal/monitor"
)

// Config holds the parameters required to connect to an MQTT broker and
// publish verdicts to a single topic.
type Config struct {
	BrokerURL string // e.g., "tcp://127.0.0.1:1883" or "ssl://mqtt.example.com:8883"
	ClientID  string // optional; if empty, a random ID is generated
	Topic     string // topic the verdicts are published to
	QoS       byte   // 0 or 1
	Username  string // optional; MQTT username for authentication
	Password  string // optional; MQTT password for authentication
	TLSCAFile string // optional; path to CA certificate file for TLS verification
}

// Publisher is a publish-only MQTT client built on the Eclipse Paho
// library. It satisfies monitor.Publisher.
type Publisher struct {
	config          Config
	pahoClient      paho.Client
	connectAttempts int32
}

// NewPublisher validates the configuration and constructs the MQTT
// publisher. The underlying Paho client is created but the TCP connection
// is not opened until Connect is called. When ClientID is empty a random
// UUID-based identifier is generated.
func NewPublisher(config Config) (*Publisher, error) {
	if config.BrokerURL == "" {
		return nil, errors.New("report: BrokerURL required")
	}
	if config.Topic == "" {
		return nil, errors.New("report: Topic required")
	}
	if config.ClientID == "" {
		generatedID, err := generateClientID()
		if err != nil {
			return nil, fmt.Errorf("report: generate client id: %w", err)
		}

		config.ClientID = generatedID
	}
	if config.QoS > 1 {
		config.QoS = 1
	}

	publisher := &Publisher{config: config}

	opts := paho.NewClientOptions().
		AddBroker(config.BrokerURL).
		SetClientID(config.ClientID).
		SetAutoReconnect(true). // pragmatic default on a LAN
		SetCleanSession(true).  // no inbound state worth preserving
		SetKeepAlive(20 * time.Second).
		SetPingTimeout(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			if atomic.AddInt32(&publisher.connectAttempts, 1) > 1 {
				metrics.RecordBrokerReconnect()
				log.Printf("report: reconnected to %s", config.BrokerURL)
			} else {
				log.Printf("report: connected to %s", config.BrokerURL)
			}
			metrics.SetBrokerConnected(true)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			metrics.SetBrokerConnected(false)
			if err != nil {
				log.Printf("report: connection lost: %v", err)
			} else {
				log.Printf("report: connection lost (reason unknown)")
			}
		})

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	if isTLSBroker(config.BrokerURL) {
		tlsConfig, err := createBrokerTLSConfig(config)
		if err != nil {
			return nil, fmt.Errorf("report: TLS configuration failed: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	publisher.pahoClient = paho.NewClient(opts)
	return publisher, nil
}

// isTLSBroker reports whether the broker URL scheme implies a TLS transport.
func isTLSBroker(brokerURL string) bool {
	lower := strings.ToLower(brokerURL)
	return strings.HasPrefix(lower, "ssl://") ||
		strings.HasPrefix(lower, "tls://") ||
		strings.HasPrefix(lower, "mqtts://") ||
		strings.HasPrefix(lower, "tcps://")
}

// createBrokerTLSConfig builds a tls.Config using either the custom CA
// certificate specified in Config.TLSCAFile or the system certificate pool.
func createBrokerTLSConfig(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if config.TLSCAFile != "" {
		caCert, err := os.ReadFile(config.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}

		tlsConfig.RootCAs = caCertPool
		log.Printf("report: using custom CA certificate from %s", config.TLSCAFile)
	} else {
		systemCAs, err := x509.SystemCertPool()
		if err != nil {
			log.Printf("report: warning, failed to load system CA pool: %v, using empty pool", err)
			systemCAs = x509.NewCertPool()
		}
		tlsConfig.RootCAs = systemCAs
		log.Println("report: using system CA certificate pool")
	}

	return tlsConfig, nil
}

// generateClientID produces a cryptographically random client identifier in
// the form "rngcheck-tx-<UUIDv4>".
func generateClientID() (string, error) {
	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		return "", err
	}

	uuid[6] = (uuid[6] & 0x0f) | 0x40 // version 4
	uuid[8] = (uuid[8] & 0x3f) | 0x80 // variant 10

	encoded := make([]byte, hex.EncodedLen(len(uuid)))
	hex.Encode(encoded, uuid[:])

	return fmt.Sprintf(
		"rngcheck-tx-%s-%s-%s-%s-%s",
		encoded[0:8],
		encoded[8:12],
		encoded[12:16],
		encoded[16:20],
		encoded[20:32],
	), nil
}

// Connect opens the TCP connection and blocks until the broker accepts it
// or a ten-second timeout elapses.
func (p *Publisher) Connect() error {
	if p.pahoClient == nil {
		return errors.New("report: publisher not initialized")
	}

	token := p.pahoClient.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		metrics.SetBrokerConnected(false)
		return errors.New("report: connect timeout")
	}

	if err := token.Error(); err != nil {
		metrics.SetBrokerConnected(false)
		return fmt.Errorf("report: connect failed: %w", err)
	}

	return nil
}

// Publish encodes the verdict as JSON and sends it to the configured
// topic. It blocks until the broker acknowledges the message (for QoS 1)
// or a five-second timeout elapses.
func (p *Publisher) Publish(verdict monitor.Verdict) error {
	payload, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("report: encode verdict: %w", err)
	}

	token := p.pahoClient.Publish(p.config.Topic, p.config.QoS, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("report: publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("report: publish failed: %w", err)
	}

	return nil
}

// Close disconnects from the broker with a 250 ms quiesce period.
func (p *Publisher) Close() {
	metrics.SetBrokerConnected(false)

	if p.pahoClient != nil && p.pahoClient.IsConnectionOpen() {
		p.pahoClient.Disconnect(250) // ms
	}
}
