package network

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// StunServer is one STUN endpoint with optional credentials.
type StunServer struct {
	// URL is the server address ("stun:host:port" or "host:port").
	URL string

	// Username and Credential are optional long-term credentials.
	Username   string
	Credential string

	// Priority orders servers; higher is tried first.
	Priority int
}

// TurnServer is one TURN relay with credentials.
type TurnServer struct {
	// URL is the relay address ("turn:host:port" or "host:port").
	URL string

	Username   string
	Credential string
	Realm      string

	// Priority orders servers; higher is tried first.
	Priority int
}

// HostPort strips a stun:/turn: scheme prefix.
func HostPort(url string) string {
	for _, scheme := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(url, scheme) {
			return strings.TrimPrefix(url, scheme)
		}
	}
	return url
}

// ICECandidate is one advertised transport address.
type ICECandidate struct {
	// SDPLine is the candidate attribute line.
	SDPLine string

	// Foundation groups candidates from the same base.
	Foundation string

	// Priority orders candidates during connectivity checks.
	Priority uint32

	// IP and Port are the advertised address.
	IP   string
	Port int

	// Type classifies the candidate.
	Type CandidateType

	// Transport is the candidate's transport protocol.
	Transport CandidateTransport
}

// candidatePriority computes an RFC 8445 style priority from the type
// preference.
func candidatePriority(typ CandidateType) uint32 {
	var typePref uint32
	switch typ {
	case CandidateHost:
		typePref = 126
	case CandidatePeerReflexive:
		typePref = 110
	case CandidateServerReflexive:
		typePref = 100
	case CandidateRelay:
		typePref = 0
	}
	const localPref = 65535
	const componentID = 1
	return typePref<<24 | localPref<<8 | (256 - componentID)
}

// newCandidate builds a candidate with its SDP line and priority.
func newCandidate(typ CandidateType, transport CandidateTransport, ip string, port int, foundation string) ICECandidate {
	priority := candidatePriority(typ)
	return ICECandidate{
		SDPLine: fmt.Sprintf("candidate:%s 1 %s %d %s %d typ %s",
			foundation, strings.ToUpper(string(transport)), priority, ip, port, typ),
		Foundation: foundation,
		Priority:   priority,
		IP:         ip,
		Port:       port,
		Type:       typ,
		Transport:  transport,
	}
}

// Stats is one link measurement sample.
type Stats struct {
	// RTTMs is the round-trip time in milliseconds.
	RTTMs float64

	// PacketLoss is the loss percentage.
	PacketLoss float64

	// JitterMs is inter-sample delay variation.
	JitterMs float64

	// BandwidthBps is the estimated capacity in bits per second.
	BandwidthBps uint64

	// Kind is the connection kind the sample was measured over.
	Kind ConnectionKind

	// LocalAddr and RemoteAddr identify the measured path.
	LocalAddr  string
	RemoteAddr string

	// Protocol is the family preference in force.
	Protocol Protocol

	// SampledAt is when the measurement was taken.
	SampledAt time.Time
}

// sortStunServers orders the list descending by priority, keeping
// insertion order inside equal priorities.
func sortStunServers(servers []StunServer) {
	sort.SliceStable(servers, func(i, j int) bool {
		return servers[i].Priority > servers[j].Priority
	})
}

func sortTurnServers(servers []TurnServer) {
	sort.SliceStable(servers, func(i, j int) bool {
		return servers[i].Priority > servers[j].Priority
	})
}
