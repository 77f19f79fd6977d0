// Package network manages connectivity for the engine: prioritized
// STUN/TURN server lists, protocol preference with fallback, ICE
// candidate gathering, and a continuous 1 Hz quality monitor feeding a
// bounded sample ring.
package network

// Protocol is an IP protocol family preference.
type Protocol string

const (
	ProtocolIPv4 Protocol = "ipv4"
	ProtocolIPv6 Protocol = "ipv6"
)

// ConnectionKind is how a peer is reached.
type ConnectionKind string

const (
	ConnectionDirect     ConnectionKind = "direct"
	ConnectionSTUNDirect ConnectionKind = "stun-direct"
	ConnectionTURNRelay  ConnectionKind = "turn-relay"
	ConnectionUnknown    ConnectionKind = "unknown"
)

// Quality is the categorical link summary.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityPoor
	QualityFair
	QualityGood
	QualityExcellent
)

// String returns a human-readable name for the quality bucket.
func (q Quality) String() string {
	switch q {
	case QualityExcellent:
		return "Excellent"
	case QualityGood:
		return "Good"
	case QualityFair:
		return "Fair"
	case QualityPoor:
		return "Poor"
	default:
		return "Unknown"
	}
}

// CandidateType classifies an ICE candidate.
type CandidateType string

const (
	CandidateHost            CandidateType = "host"
	CandidateServerReflexive CandidateType = "srflx"
	CandidatePeerReflexive   CandidateType = "prflx"
	CandidateRelay           CandidateType = "relay"
)

// CandidateTransport is the candidate's transport protocol.
type CandidateTransport string

const (
	TransportUDP CandidateTransport = "udp"
	TransportTCP CandidateTransport = "tcp"
)

// ClassifyQuality buckets a sample by round-trip time and loss.
// Boundaries are exclusive in favor of the worse bucket; the function
// is pure and stable for fixed inputs.
func ClassifyQuality(rttMs float64, lossPct float64) Quality {
	switch {
	case rttMs < 50 && lossPct < 1.0:
		return QualityExcellent
	case rttMs < 100 && lossPct < 3.0:
		return QualityGood
	case rttMs < 200 && lossPct < 5.0:
		return QualityFair
	default:
		return QualityPoor
	}
}
