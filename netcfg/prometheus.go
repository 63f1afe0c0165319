package netcfg

import "fmt"

// DefaultPrometheusListen is the address the metrics endpoint listens on
// when enabled.
const DefaultPrometheusListen = "127.0.0.1:8989"

// Prometheus configures the Prometheus exporter.
//
//nolint:lll
type Prometheus struct {
	Enable bool   `long:"enable" description:"Expose peer connection metrics on a /metrics endpoint"`
	Listen string `long:"listen" description:"The host:port the metrics endpoint listens on"`
}

// DefaultPrometheus is the default configuration for the Prometheus metrics
// exporter.
func DefaultPrometheus() Prometheus {
	return Prometheus{
		Listen: DefaultPrometheusListen,
	}
}

// Enabled returns whether or not Prometheus monitoring is enabled.
func (p *Prometheus) Enabled() bool {
	return p.Enable
}

// Validate normalizes the listen address of an enabled exporter.
func (p *Prometheus) Validate() error {
	if !p.Enable {
		return nil
	}

	listen, err := ParsePeerAddress(p.Listen, "8989")
	if err != nil {
		return fmt.Errorf("invalid prometheus.listen: %w", err)
	}
	p.Listen = listen

	return nil
}
