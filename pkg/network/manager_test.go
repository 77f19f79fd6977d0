package network

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeProber scripts probe outcomes per strategy.
type fakeProber struct {
	ipv4Addrs []string
	ipv6Addrs []string

	directErr map[Protocol]error
	stunErr   error
	turnErr   error

	mu        sync.Mutex
	stunCalls []string
	turnCalls []string
}

func (p *fakeProber) LocalAddresses() ([]string, []string, error) {
	return p.ipv4Addrs, p.ipv6Addrs, nil
}

func (p *fakeProber) TestConnectivity(ctx context.Context, proto Protocol, target string) error {
	if p.directErr == nil {
		return nil
	}
	return p.directErr[proto]
}

func (p *fakeProber) STUNBind(ctx context.Context, server StunServer) (string, int, time.Duration, error) {
	p.mu.Lock()
	p.stunCalls = append(p.stunCalls, server.URL)
	p.mu.Unlock()
	if p.stunErr != nil {
		return "", 0, 0, p.stunErr
	}
	return "198.51.100.7", 62000, 20 * time.Millisecond, nil
}

func (p *fakeProber) TURNAllocate(ctx context.Context, server TurnServer) (string, int, error) {
	p.mu.Lock()
	p.turnCalls = append(p.turnCalls, server.URL)
	p.mu.Unlock()
	if p.turnErr != nil {
		return "", 0, p.turnErr
	}
	return "203.0.113.9", 49152, nil
}

var errProbe = errors.New("probe failed")

func TestClassifyQuality(t *testing.T) {
	cases := []struct {
		rtt, loss float64
		want      Quality
	}{
		{40, 0.5, QualityExcellent},
		{49.9, 0.99, QualityExcellent},
		{50, 0.5, QualityGood}, // boundary goes to the worse bucket
		{40, 1.0, QualityGood},
		{99, 2.9, QualityGood},
		{100, 2.0, QualityFair},
		{150, 4.9, QualityFair},
		{200, 0.1, QualityPoor},
		{250, 8, QualityPoor},
		{10, 5.0, QualityPoor},
	}
	for _, c := range cases {
		if got := ClassifyQuality(c.rtt, c.loss); got != c.want {
			t.Errorf("ClassifyQuality(%v, %v) = %s, want %s", c.rtt, c.loss, got, c.want)
		}
	}

	// Purity: repeated evaluation is stable.
	for i := 0; i < 10; i++ {
		if ClassifyQuality(250, 8) != QualityPoor {
			t.Fatal("classification should be deterministic")
		}
	}
}

func TestServerPriorityOrdering(t *testing.T) {
	m := NewManager(ManagerConfig{
		StunServers: []StunServer{
			{URL: "stun:low", Priority: 1},
			{URL: "stun:high", Priority: 10},
		},
		Prober: &fakeProber{},
	})
	m.AddStunServer(StunServer{URL: "stun:mid", Priority: 5})

	servers := m.StunServers()
	want := []string{"stun:high", "stun:mid", "stun:low"}
	for i, url := range want {
		if servers[i].URL != url {
			t.Errorf("servers[%d] = %s, want %s", i, servers[i].URL, url)
		}
	}
}

func TestInitialize(t *testing.T) {
	m := NewManager(ManagerConfig{
		Prober: &fakeProber{ipv4Addrs: []string{"192.0.2.10"}},
	})
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !m.IPv4Available() {
		t.Error("IPv4 should be available")
	}
	if m.IPv6Available() {
		t.Error("IPv6 should not be available")
	}
}

func TestEstablishConnection(t *testing.T) {
	t.Run("direct over preferred protocol", func(t *testing.T) {
		m := NewManager(ManagerConfig{Prober: &fakeProber{}})
		kind, err := m.EstablishConnection(context.Background(), "peer:1234")
		if err != nil || kind != ConnectionDirect {
			t.Errorf("EstablishConnection() = %s, %v; want direct", kind, err)
		}
	})

	t.Run("fallback to ipv4 emits event", func(t *testing.T) {
		prober := &fakeProber{directErr: map[Protocol]error{ProtocolIPv6: errProbe}}
		m := NewManager(ManagerConfig{Prober: prober, PreferredProtocol: ProtocolIPv6})

		var events []Event
		m.Subscribe(func(ev Event) { events = append(events, ev) })

		kind, err := m.EstablishConnection(context.Background(), "peer:1234")
		if err != nil || kind != ConnectionDirect {
			t.Fatalf("EstablishConnection() = %s, %v; want direct over ipv4", kind, err)
		}
		if len(events) != 1 || events[0].Type != EventProtocolFallback {
			t.Fatalf("events = %v, want one ProtocolFallback", events)
		}
		if events[0].FromProtocol != ProtocolIPv6 || events[0].ToProtocol != ProtocolIPv4 {
			t.Errorf("fallback = %s -> %s, want ipv6 -> ipv4", events[0].FromProtocol, events[0].ToProtocol)
		}
	})

	t.Run("stun when direct fails", func(t *testing.T) {
		prober := &fakeProber{
			directErr: map[Protocol]error{ProtocolIPv4: errProbe, ProtocolIPv6: errProbe},
		}
		m := NewManager(ManagerConfig{
			Prober:      prober,
			StunServers: []StunServer{{URL: "stun:server", Priority: 1}},
		})
		kind, err := m.EstablishConnection(context.Background(), "peer:1234")
		if err != nil || kind != ConnectionSTUNDirect {
			t.Errorf("EstablishConnection() = %s, %v; want stun-direct", kind, err)
		}
	})

	t.Run("turn as last resort", func(t *testing.T) {
		prober := &fakeProber{
			directErr: map[Protocol]error{ProtocolIPv4: errProbe, ProtocolIPv6: errProbe},
			stunErr:   errProbe,
		}
		m := NewManager(ManagerConfig{
			Prober:      prober,
			StunServers: []StunServer{{URL: "stun:server"}},
			TurnServers: []TurnServer{{URL: "turn:relay"}},
		})
		kind, err := m.EstablishConnection(context.Background(), "peer:1234")
		if err != nil || kind != ConnectionTURNRelay {
			t.Errorf("EstablishConnection() = %s, %v; want turn-relay", kind, err)
		}
	})

	t.Run("nothing works", func(t *testing.T) {
		prober := &fakeProber{
			directErr: map[Protocol]error{ProtocolIPv4: errProbe, ProtocolIPv6: errProbe},
			stunErr:   errProbe,
			turnErr:   errProbe,
		}
		m := NewManager(ManagerConfig{
			Prober:      prober,
			StunServers: []StunServer{{URL: "stun:server"}},
			TurnServers: []TurnServer{{URL: "turn:relay"}},
		})
		kind, err := m.EstablishConnection(context.Background(), "peer:1234")
		if !errors.Is(err, ErrNoRoute) || kind != ConnectionUnknown {
			t.Errorf("EstablishConnection() = %s, %v; want unknown + ErrNoRoute", kind, err)
		}
	})

	// With a reachable IPv4 path the ladder always lands somewhere.
	t.Run("ipv4 available guarantees a kind", func(t *testing.T) {
		prober := &fakeProber{
			ipv4Addrs: []string{"192.0.2.10"},
			directErr: map[Protocol]error{ProtocolIPv6: errProbe},
		}
		m := NewManager(ManagerConfig{Prober: prober, PreferredProtocol: ProtocolIPv6})
		m.Initialize()
		kind, err := m.EstablishConnection(context.Background(), "peer:1234")
		if err != nil {
			t.Fatalf("EstablishConnection() error = %v", err)
		}
		if kind == ConnectionUnknown {
			t.Error("kind should be known when IPv4 works")
		}
	})
}

func TestGatherICECandidates(t *testing.T) {
	prober := &fakeProber{
		ipv4Addrs: []string{"192.0.2.10"},
		ipv6Addrs: []string{"2001:db8::10"},
	}
	m := NewManager(ManagerConfig{
		Prober: prober,
		StunServers: []StunServer{
			{URL: "stun:first", Priority: 2},
			{URL: "stun:second", Priority: 1},
		},
		TurnServers: []TurnServer{{URL: "turn:relay"}},
	})

	candidates, err := m.GatherICECandidates(context.Background())
	if err != nil {
		t.Fatalf("GatherICECandidates() error = %v", err)
	}

	byType := map[CandidateType]int{}
	for _, c := range candidates {
		byType[c.Type]++
		if c.SDPLine == "" || c.Priority == 0 && c.Type != CandidateRelay {
			t.Errorf("candidate %+v missing SDP line or priority", c)
		}
	}
	if byType[CandidateHost] != 2 {
		t.Errorf("host candidates = %d, want 2 (one per family)", byType[CandidateHost])
	}
	if byType[CandidateServerReflexive] != 1 {
		t.Errorf("srflx candidates = %d, want 1", byType[CandidateServerReflexive])
	}
	if byType[CandidateRelay] != 1 {
		t.Errorf("relay candidates = %d, want 1", byType[CandidateRelay])
	}

	// Only the first answering STUN server is consulted.
	prober.mu.Lock()
	defer prober.mu.Unlock()
	if len(prober.stunCalls) != 1 || prober.stunCalls[0] != "stun:first" {
		t.Errorf("stunCalls = %v, want only the highest-priority server", prober.stunCalls)
	}
}

func TestMonitor(t *testing.T) {
	var mu sync.Mutex
	var fed []Stats
	sampler := func(ctx context.Context) (Stats, error) {
		mu.Lock()
		defer mu.Unlock()
		s := Stats{RTTMs: 250, PacketLoss: 8, Kind: ConnectionDirect}
		fed = append(fed, s)
		return s, nil
	}

	m := NewManager(ManagerConfig{
		Prober:         &fakeProber{},
		Sampler:        sampler,
		SampleInterval: 10 * time.Millisecond,
	})

	var evMu sync.Mutex
	events := map[EventType]int{}
	m.Subscribe(func(ev Event) {
		evMu.Lock()
		events[ev.Type]++
		evMu.Unlock()
	})

	if err := m.StartMonitoring(); err != nil {
		t.Fatalf("StartMonitoring() error = %v", err)
	}
	if err := m.StartMonitoring(); !errors.Is(err, ErrMonitorRunning) {
		t.Errorf("second StartMonitoring() error = %v, want ErrMonitorRunning", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if stats, ok := m.CurrentStats(); ok && stats.RTTMs == 250 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("monitor never produced a sample")
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.StopMonitoring()

	if got := m.CurrentQuality(); got != QualityPoor {
		t.Errorf("CurrentQuality() = %s, want Poor", got)
	}
	if !m.ShouldWarn() {
		t.Error("poor quality should warn")
	}

	evMu.Lock()
	defer evMu.Unlock()
	if events[EventStatsUpdated] == 0 {
		t.Error("StatsUpdated should have fired")
	}
	if events[EventQualityChanged] != 1 {
		t.Errorf("QualityChanged fired %d times, want 1 (unknown -> poor)", events[EventQualityChanged])
	}
	if events[EventQualityWarning] == 0 {
		t.Error("QualityWarning should fire while poor")
	}
}

func TestSampleRing(t *testing.T) {
	ring := newSampleRing(3)

	if _, ok := ring.latest(); ok {
		t.Error("empty ring should have no latest sample")
	}

	for i := 1; i <= 5; i++ {
		ring.push(Stats{RTTMs: float64(i)})
	}
	if ring.len() != 3 {
		t.Errorf("len() = %d, want 3", ring.len())
	}

	snap := ring.snapshot()
	want := []float64{3, 4, 5}
	for i, rtt := range want {
		if snap[i].RTTMs != rtt {
			t.Errorf("snapshot[%d].RTTMs = %v, want %v", i, snap[i].RTTMs, rtt)
		}
	}

	latest, ok := ring.latest()
	if !ok || latest.RTTMs != 5 {
		t.Errorf("latest() = %v, %v; want 5", latest.RTTMs, ok)
	}
}
