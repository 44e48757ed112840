// Package telemetry exposes operational counters and gauges with a Prometheus
// text exposition endpoint, using only standard library constructs.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
)

// Provider holds the process-wide metric state.
type Provider struct {
	serviceName string

	mu       sync.RWMutex
	counters map[string]*counter
	gauges   map[string]int64
}

type counter struct {
	help   string
	mu     sync.Mutex
	values map[string]int64 // label string -> value
}

func NewProvider(serviceName string) *Provider {
	return &Provider{
		serviceName: serviceName,
		counters:    make(map[string]*counter),
		gauges:      make(map[string]int64),
	}
}

func (p *Provider) getOrCreateCounter(name, help string) *counter {
	p.mu.RLock()
	c, ok := p.counters[name]
	p.mu.RUnlock()
	if ok {
		return c
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c = &counter{help: help, values: make(map[string]int64)}
	p.counters[name] = c
	return c
}

// IncCounter increments a counter. labels is a rendered Prometheus label set
// like `outcome="granted"`, or empty.
func (p *Provider) IncCounter(name, help, labels string) {
	c := p.getOrCreateCounter(name, help)
	c.mu.Lock()
	c.values[labels]++
	c.mu.Unlock()
}

// Counter reads a counter value for a label set.
func (p *Provider) Counter(name, labels string) int64 {
	p.mu.RLock()
	c, ok := p.counters[name]
	p.mu.RUnlock()
	if !ok {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[labels]
}

// SetGauge sets a gauge to an absolute value.
func (p *Provider) SetGauge(name string, v int64) {
	p.mu.Lock()
	p.gauges[name] = v
	p.mu.Unlock()
}

// Gauge reads a gauge.
func (p *Provider) Gauge(name string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gauges[name]
}

// AuditWriteFailure implements the audit trail's failure sink.
func (p *Provider) AuditWriteFailure() {
	p.IncCounter("afya_audit_write_failures_total",
		"Audit entries that could not be persisted.", "")
}

// AccessAttempt counts one resolved share-access attempt by outcome.
func (p *Provider) AccessAttempt(outcome string) {
	p.IncCounter("afya_access_attempts_total",
		"Resolved record-access attempts by outcome.",
		fmt.Sprintf("outcome=%q", outcome))
}

// TokenIssued counts one issued access token.
func (p *Provider) TokenIssued() {
	p.IncCounter("afya_tokens_issued_total", "Access tokens issued.", "")
}

// PrometheusHandler serves the metric state in Prometheus text format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		p.mu.RLock()
		counterNames := make([]string, 0, len(p.counters))
		for name := range p.counters {
			counterNames = append(counterNames, name)
		}
		gaugeNames := make([]string, 0, len(p.gauges))
		for name := range p.gauges {
			gaugeNames = append(gaugeNames, name)
		}
		p.mu.RUnlock()
		sort.Strings(counterNames)
		sort.Strings(gaugeNames)

		for _, name := range counterNames {
			p.mu.RLock()
			ctr := p.counters[name]
			p.mu.RUnlock()

			fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n", name, ctr.help, name)
			ctr.mu.Lock()
			labelSets := make([]string, 0, len(ctr.values))
			for labels := range ctr.values {
				labelSets = append(labelSets, labels)
			}
			sort.Strings(labelSets)
			for _, labels := range labelSets {
				if labels == "" {
					fmt.Fprintf(&b, "%s %d\n", name, ctr.values[labels])
				} else {
					fmt.Fprintf(&b, "%s{%s} %d\n", name, labels, ctr.values[labels])
				}
			}
			ctr.mu.Unlock()
		}

		for _, name := range gaugeNames {
			fmt.Fprintf(&b, "# HELP %s\n# TYPE %s gauge\n%s %d\n", name, name, name, p.Gauge(name))
		}

		return c.String(http.StatusOK, b.String())
	}
}
