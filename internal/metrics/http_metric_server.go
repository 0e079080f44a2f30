package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const baseURLV1 = "/api/v1"

// Server exposes Prometheus metrics over HTTP with graceful shutdown.
// Endpoints:
//   - GET /api/v1/metrics -- Prometheus metrics (DefaultGatherer)
//   - GET /api/v1/health  -- simple liveness check
type Server struct {
	addr   string
	server *http.Server
}

// NewServer creates a metrics HTTP server listening on addr, given in
// "host:port" form (e.g. "127.0.0.1:8000" or ":8000").
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle(baseURLV1+"/metrics", promhttp.Handler())
	mux.HandleFunc(baseURLV1+"/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Printf("metrics: health handler write error: %v", err)
		}
	})

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start serves HTTP requests until Shutdown is called or a fatal error
// occurs. Graceful shutdown via Shutdown is not reported as an error.
func (s *Server) Start() error {
	if s.server == nil {
		return errors.New("metrics server not initialized")
	}

	log.Printf("metrics: starting HTTP server on %s", s.addr)

	if err := validateAddress(s.addr); err != nil {
		return fmt.Errorf("metrics: invalid address %q: %w", s.addr, err)
	}

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: HTTP server error: %w", err)
	}

	log.Println("metrics: HTTP server stopped")
	return nil
}

// StartTLS serves HTTPS requests using the given server certificate and
// key. When caFile is non-empty it is loaded as the client CA pool, and
// clientAuth controls whether client certificates are requested or
// required (mTLS).
func (s *Server) StartTLS(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error {
	if s.server == nil {
		return errors.New("metrics server not initialized")
	}

	log.Printf("metrics: starting HTTPS server on %s", s.addr)

	if err := validateAddress(s.addr); err != nil {
		return fmt.Errorf("metrics: invalid address %q: %w", s.addr, err)
	}

	tlsConfig, err := buildServerTLSConfig(certFile, keyFile, caFile, clientAuth)
	if err != nil {
		return fmt.Errorf("metrics: configure TLS: %w", err)
	}
	s.server.TLSConfig = tlsConfig

	log.Printf("metrics: loaded server certificate from %s", certFile)
	if caFile != "" {
		log.Printf("metrics: using CA certificate from %s for client verification", caFile)
	}

	err = s.server.ListenAndServeTLS("", "")
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: HTTPS server error: %w", err)
	}

	log.Println("metrics: HTTPS server stopped")
	return nil
}

// Shutdown gracefully stops the server, allowing in-flight requests to
// complete within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Println("metrics: shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics: shutdown error: %w", err)
	}

	log.Println("metrics: HTTP server shutdown complete")
	return nil
}

// buildServerTLSConfig assembles a tls.Config from certificate files.
func buildServerTLSConfig(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}

	tlsConfig := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   clientAuth,
	}

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}

		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.ClientCAs = caPool
	}

	return tlsConfig, nil
}

// validateAddress checks that addr is a resolvable host:port before a
// listen attempt, so configuration mistakes surface as clear errors.
func validateAddress(addr string) error {
	if addr == "" {
		return errors.New("empty address")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid host:port format: %w", err)
	}

	if port == "" {
		return errors.New("port is required")
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		return nil
	}

	if _, err := net.LookupHost(host); err != nil {
		return fmt.Errorf("cannot resolve host %q: %w", host, err)
	}

	return nil
}
