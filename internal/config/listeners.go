package config

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/theblitlabs/parity-monitor/pkg/logger"
)

const (
	ListenerPlain  = "plain"
	ListenerSecure = "secure"
)

// ListenerSpec is one resolved accept endpoint. TLS is nil for plaintext.
type ListenerSpec struct {
	Name string
	Addr string
	TLS  *tls.Config
}

// Listen opens the endpoint, wrapping it in TLS when configured.
func (l ListenerSpec) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return nil, fmt.Errorf("%s listener on %s: %w", l.Name, l.Addr, err)
	}
	if l.TLS != nil {
		return tls.NewListener(ln, l.TLS), nil
	}
	return ln, nil
}

// Listeners resolves the configured endpoints once at startup. The plaintext
// listener is always present. The secure one is added only when both
// certificate files exist; missing files disable it with a warning, while
// unreadable key material is an error.
func (c ServerConfig) Listeners() ([]ListenerSpec, error) {
	log := logger.WithComponent("config")

	specs := []ListenerSpec{{
		Name: ListenerPlain,
		Addr: net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}}

	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
		log.Debug().Msg("No certificate configured, secure listener disabled")
		return specs, nil
	}

	for _, path := range []string{c.TLS.CertFile, c.TLS.KeyFile} {
		if _, err := os.Stat(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Certificate material missing, secure listener disabled")
			return specs, nil
		}
	}

	cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate %s: %w", c.TLS.CertFile, err)
	}

	specs = append(specs, ListenerSpec{
		Name: ListenerSecure,
		Addr: net.JoinHostPort(c.Host, strconv.Itoa(c.TLS.Port)),
		TLS: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	})
	return specs, nil
}
