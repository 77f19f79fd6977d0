package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pion/logging"
	"github.com/pion/stun/v3"
	"github.com/pion/transport/v3/stdnet"
	"github.com/pion/turn/v4"
)

// Prober performs the actual reachability and server probes. The
// default implementation talks to the real network; tests substitute
// their own.
type Prober interface {
	// LocalAddresses returns usable unicast addresses per protocol
	// family.
	LocalAddresses() (ipv4, ipv6 []string, err error)

	// TestConnectivity dials the target over the given family.
	TestConnectivity(ctx context.Context, proto Protocol, target string) error

	// STUNBind asks the server for our reflexive address, returning it
	// with the observed round trip.
	STUNBind(ctx context.Context, server StunServer) (ip string, port int, rtt time.Duration, err error)

	// TURNAllocate requests a relayed address from the server.
	TURNAllocate(ctx context.Context, server TurnServer) (ip string, port int, err error)
}

// netProber is the production Prober over the host network stack.
type netProber struct {
	log           logging.LeveledLogger
	loggerFactory logging.LoggerFactory
}

// NewProber returns the production prober.
func NewProber(loggerFactory logging.LoggerFactory) Prober {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &netProber{
		log:           loggerFactory.NewLogger("network"),
		loggerFactory: loggerFactory,
	}
}

// LocalAddresses enumerates interface addresses through the pion net
// abstraction.
func (p *netProber) LocalAddresses() (ipv4, ipv6 []string, err error) {
	n, err := stdnet.NewNet()
	if err != nil {
		return nil, nil, fmt.Errorf("network: creating net: %w", err)
	}
	interfaces, err := n.Interfaces()
	if err != nil {
		return nil, nil, fmt.Errorf("network: listing interfaces: %w", err)
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP
			if ip.IsLinkLocalUnicast() || ip.IsLoopback() {
				continue
			}
			if v4 := ip.To4(); v4 != nil {
				ipv4 = append(ipv4, v4.String())
			} else if ip.To16() != nil {
				ipv6 = append(ipv6, ip.String())
			}
		}
	}
	return ipv4, ipv6, nil
}

// TestConnectivity dials the target with the family-restricted
// network.
func (p *netProber) TestConnectivity(ctx context.Context, proto Protocol, target string) error {
	network := "udp4"
	if proto == ProtocolIPv6 {
		network = "udp6"
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, target)
	if err != nil {
		return fmt.Errorf("network: dialing %s over %s: %w", target, proto, err)
	}
	return conn.Close()
}

// STUNBind runs one binding request against the server.
func (p *netProber) STUNBind(ctx context.Context, server StunServer) (string, int, time.Duration, error) {
	client, err := stun.Dial("udp4", HostPort(server.URL))
	if err != nil {
		return "", 0, 0, fmt.Errorf("network: dialing STUN %s: %w", server.URL, err)
	}
	defer client.Close()

	var (
		xorAddr stun.XORMappedAddress
		doErr   error
		done    = make(chan struct{})
	)
	start := time.Now()
	message := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	if err := client.Start(message, func(res stun.Event) {
		defer close(done)
		if res.Error != nil {
			doErr = res.Error
			return
		}
		doErr = xorAddr.GetFrom(res.Message)
	}); err != nil {
		return "", 0, 0, fmt.Errorf("network: STUN binding to %s: %w", server.URL, err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return "", 0, 0, ctx.Err()
	}
	if doErr != nil {
		return "", 0, 0, fmt.Errorf("network: STUN binding to %s: %w", server.URL, doErr)
	}
	return xorAddr.IP.String(), xorAddr.Port, time.Since(start), nil
}

// TURNAllocate requests a relayed transport address.
func (p *netProber) TURNAllocate(ctx context.Context, server TurnServer) (string, int, error) {
	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return "", 0, fmt.Errorf("network: opening TURN socket: %w", err)
	}

	addr := HostPort(server.URL)
	client, err := turn.NewClient(&turn.ClientConfig{
		STUNServerAddr: addr,
		TURNServerAddr: addr,
		Conn:           conn,
		Username:       server.Username,
		Password:       server.Credential,
		Realm:          server.Realm,
		LoggerFactory:  p.loggerFactory,
	})
	if err != nil {
		conn.Close()
		return "", 0, fmt.Errorf("network: creating TURN client for %s: %w", server.URL, err)
	}
	defer func() {
		client.Close()
		conn.Close()
	}()

	if err := client.Listen(); err != nil {
		return "", 0, fmt.Errorf("network: TURN listen on %s: %w", server.URL, err)
	}
	relay, err := client.Allocate()
	if err != nil {
		return "", 0, fmt.Errorf("network: TURN allocate on %s: %w", server.URL, err)
	}
	defer relay.Close()

	host, port, err := splitHostPort(relay.LocalAddr().String())
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("network: parsing %q: %w", addr, err)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return "", 0, fmt.Errorf("network: parsing port of %q: %w", addr, err)
	}
	return host, port, nil
}

// foundationFor derives a stable candidate foundation from its base.
func foundationFor(typ CandidateType, base string) string {
	sum := 0
	for _, r := range base + string(typ) {
		sum = sum*31 + int(r)
	}
	if sum < 0 {
		sum = -sum
	}
	return fmt.Sprintf("%d", sum%1_000_000)
}
