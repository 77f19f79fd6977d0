// Package diagnostics probes the engine's network prerequisites and
// produces a structured report: address availability, NAT behavior,
// and per-server reachability for the STUN and TURN endpoints. The
// signaling endpoint is not probed.
package diagnostics

import (
	"context"
	"time"

	"github.com/pion/logging"

	"github.com/cecdesk/core/pkg/network"
)

// NATType classifies the NAT in front of this device.
type NATType string

const (
	NATUnknown            NATType = "unknown"
	NATOpenInternet       NATType = "open-internet"
	NATFullCone           NATType = "full-cone"
	NATRestrictedCone     NATType = "restricted-cone"
	NATPortRestrictedCone NATType = "port-restricted-cone"
	NATSymmetric          NATType = "symmetric"
	NATBlocked            NATType = "blocked"
)

// ServerStatus is one endpoint's reachability snapshot.
type ServerStatus struct {
	Name      string
	URL       string
	Reachable bool
	LatencyMs float64
	Err       string
	CheckedAt time.Time
}

// Report is a full diagnostics pass.
type Report struct {
	Timestamp         time.Time
	IPv4Available     bool
	IPv6Available     bool
	LocalIPv4         []string
	LocalIPv6         []string
	PublicIPv4        string
	NATType           NATType
	StunServers       []ServerStatus
	TurnServers       []ServerStatus
	Healthy           bool
	Recommendations   []string
}

// Prober runs the diagnostics probes. The network package's Prober
// satisfies it.
type Prober = network.Prober

// Runner executes diagnostics passes.
type Runner struct {
	log    logging.LeveledLogger
	prober Prober

	stunServers []network.StunServer
	turnServers []network.TurnServer
}

// RunnerConfig configures a diagnostics runner.
type RunnerConfig struct {
	// StunServers and TurnServers to probe.
	StunServers []network.StunServer
	TurnServers []network.TurnServer

	// Prober performs the probes. Default: network.NewProber.
	Prober Prober

	// LoggerFactory scopes the runner's logger. Default:
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// NewRunner creates a diagnostics runner.
func NewRunner(config RunnerConfig) *Runner {
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if config.Prober == nil {
		config.Prober = network.NewProber(config.LoggerFactory)
	}
	return &Runner{
		log:         config.LoggerFactory.NewLogger("diagnostics"),
		prober:      config.Prober,
		stunServers: config.StunServers,
		turnServers: config.TurnServers,
	}
}

// Run executes one diagnostics pass.
func (r *Runner) Run(ctx context.Context) *Report {
	report := &Report{
		Timestamp: time.Now(),
		NATType:   NATUnknown,
	}

	ipv4, ipv6, err := r.prober.LocalAddresses()
	if err != nil {
		r.log.Warnf("listing local addresses: %v", err)
	}
	report.LocalIPv4, report.LocalIPv6 = ipv4, ipv6
	report.IPv4Available = len(ipv4) > 0
	report.IPv6Available = len(ipv6) > 0

	// STUN answers give us the public mapping and a NAT guess.
	var mappings []string
	for _, server := range r.stunServers {
		status := ServerStatus{Name: "stun", URL: server.URL, CheckedAt: time.Now()}
		ip, _, rtt, err := r.prober.STUNBind(ctx, server)
		if err != nil {
			status.Err = err.Error()
		} else {
			status.Reachable = true
			status.LatencyMs = float64(rtt) / float64(time.Millisecond)
			mappings = append(mappings, ip)
			if report.PublicIPv4 == "" {
				report.PublicIPv4 = ip
			}
		}
		report.StunServers = append(report.StunServers, status)
	}
	report.NATType = classifyNAT(ipv4, mappings)

	for _, server := range r.turnServers {
		status := ServerStatus{Name: "turn", URL: server.URL, CheckedAt: time.Now()}
		if _, _, err := r.prober.TURNAllocate(ctx, server); err != nil {
			status.Err = err.Error()
		} else {
			status.Reachable = true
		}
		report.TurnServers = append(report.TurnServers, status)
	}

	report.Healthy = report.IPv4Available || report.IPv6Available
	report.Recommendations = recommend(report)
	return report
}

// classifyNAT makes a coarse guess from the local addresses and the
// reflexive mappings. Full RFC 5780 behavior discovery needs server
// cooperation this runner does not assume.
func classifyNAT(local, mappings []string) NATType {
	if len(mappings) == 0 {
		if len(local) == 0 {
			return NATBlocked
		}
		return NATUnknown
	}
	for _, l := range local {
		for _, m := range mappings {
			if l == m {
				return NATOpenInternet
			}
		}
	}
	// Different servers observing different mappings indicates
	// endpoint-dependent mapping.
	first := mappings[0]
	for _, m := range mappings[1:] {
		if m != first {
			return NATSymmetric
		}
	}
	return NATFullCone
}

// recommend derives user-facing hints from the report.
func recommend(r *Report) []string {
	var out []string
	if !r.IPv4Available && !r.IPv6Available {
		out = append(out, "no usable network interface found")
	}
	stunOK := false
	for _, s := range r.StunServers {
		if s.Reachable {
			stunOK = true
		}
	}
	if len(r.StunServers) > 0 && !stunOK {
		out = append(out, "all STUN servers unreachable; NAT traversal will fail")
	}
	turnOK := false
	for _, s := range r.TurnServers {
		if s.Reachable {
			turnOK = true
		}
	}
	if len(r.TurnServers) > 0 && !turnOK {
		out = append(out, "no TURN relay reachable; relayed fallback unavailable")
	}
	if r.NATType == NATSymmetric {
		out = append(out, "symmetric NAT detected; expect relay-only connectivity")
	}
	return out
}
