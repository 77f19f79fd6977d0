// Command cecdesk-diag runs a network diagnostics pass against the
// configured STUN/TURN servers and prints the report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/logging"

	"github.com/cecdesk/core/pkg/diagnostics"
	"github.com/cecdesk/core/pkg/network"
)

func main() {
	stunList := flag.String("stun", "stun:stun.l.google.com:19302", "comma-separated STUN servers")
	turnList := flag.String("turn", "", "comma-separated TURN servers (turn:host:port)")
	turnUser := flag.String("turn-user", "", "TURN username")
	turnPass := flag.String("turn-pass", "", "TURN credential")
	timeout := flag.Duration("timeout", 15*time.Second, "overall probe timeout")
	flag.Parse()

	var stun []network.StunServer
	for _, url := range strings.Split(*stunList, ",") {
		if url = strings.TrimSpace(url); url != "" {
			stun = append(stun, network.StunServer{URL: url})
		}
	}
	var turn []network.TurnServer
	for _, url := range strings.Split(*turnList, ",") {
		if url = strings.TrimSpace(url); url != "" {
			turn = append(turn, network.TurnServer{
				URL: url, Username: *turnUser, Credential: *turnPass,
			})
		}
	}

	runner := diagnostics.NewRunner(diagnostics.RunnerConfig{
		StunServers:   stun,
		TurnServers:   turn,
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	report := runner.Run(ctx)

	fmt.Printf("diagnostics at %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Printf("  ipv4=%v ipv6=%v nat=%s\n", report.IPv4Available, report.IPv6Available, report.NATType)
	if report.PublicIPv4 != "" {
		fmt.Printf("  public ipv4: %s\n", report.PublicIPv4)
	}
	for _, s := range append(report.StunServers, report.TurnServers...) {
		status := "unreachable"
		if s.Reachable {
			status = fmt.Sprintf("ok (%.0f ms)", s.LatencyMs)
		}
		fmt.Printf("  %-4s %-40s %s\n", s.Name, s.URL, status)
	}
	for _, rec := range report.Recommendations {
		fmt.Printf("  ! %s\n", rec)
	}

	if !report.Healthy {
		os.Exit(1)
	}
}
