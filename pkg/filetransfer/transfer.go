// Package filetransfer tracks file-transfer sessions: progress,
// lifecycle, and the size cap. Payload bytes move through the
// security manager and transport outside this package; the host owns
// filesystem I/O.
package filetransfer

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// MaxFileSize caps transfers in both directions.
const MaxFileSize = 4 * 1024 * 1024 * 1024 // 4 GiB

// File-transfer package errors.
var (
	// ErrTransferNotFound is returned when a transfer lookup fails.
	ErrTransferNotFound = errors.New("filetransfer: transfer not found")

	// ErrFileTooLarge is returned when a transfer exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("filetransfer: file exceeds size limit")

	// ErrInvalidState is returned for illegal lifecycle moves.
	ErrInvalidState = errors.New("filetransfer: invalid transfer state")
)

// Status is the lifecycle state of one transfer.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Progress is the observable state of one transfer.
type Progress struct {
	TransferID      string
	Filename        string
	PeerDeviceID    string
	Outbound        bool
	TotalSize       uint64
	TransferredSize uint64
	SpeedBps        uint64
	EstimatedLeft   time.Duration
	Status          Status
	StartedAt       time.Time
}

// Result summarizes a finished transfer.
type Result struct {
	TransferID string
	Success    bool
	Err        string
	FinalSize  uint64
	Duration   time.Duration
}

// Manager owns the transfer table.
type Manager struct {
	log logging.LeveledLogger

	mu        sync.RWMutex
	transfers map[string]*Progress
}

// ManagerConfig configures the transfer manager.
type ManagerConfig struct {
	// LoggerFactory scopes the manager's logger. Default:
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// NewManager creates a transfer manager.
func NewManager(config ManagerConfig) *Manager {
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Manager{
		log:       config.LoggerFactory.NewLogger("filetransfer"),
		transfers: make(map[string]*Progress),
	}
}

// BeginSend registers an outbound transfer. The size cap applies on
// both endpoints, so oversized sends are rejected here.
func (m *Manager) BeginSend(filename, peerDeviceID string, totalSize uint64) (string, error) {
	return m.begin(filename, peerDeviceID, totalSize, true)
}

// BeginReceive registers an inbound transfer, enforcing the same cap.
func (m *Manager) BeginReceive(filename, peerDeviceID string, totalSize uint64) (string, error) {
	return m.begin(filename, peerDeviceID, totalSize, false)
}

func (m *Manager) begin(filename, peerDeviceID string, totalSize uint64, outbound bool) (string, error) {
	if totalSize > MaxFileSize {
		return "", ErrFileTooLarge
	}

	p := &Progress{
		TransferID:   uuid.NewString(),
		Filename:     filename,
		PeerDeviceID: peerDeviceID,
		Outbound:     outbound,
		TotalSize:    totalSize,
		Status:       StatusPending,
		StartedAt:    time.Now(),
	}

	m.mu.Lock()
	m.transfers[p.TransferID] = p
	m.mu.Unlock()

	direction := "receive"
	if outbound {
		direction = "send"
	}
	m.log.Infof("transfer %s registered (%s %q, %d bytes)", p.TransferID, direction, filename, totalSize)
	return p.TransferID, nil
}

// Start moves a pending or paused transfer to in-progress. Resuming a
// paused transfer keeps its byte offset.
func (m *Manager) Start(transferID string) error {
	return m.setStatus(transferID, StatusInProgress, StatusPending, StatusPaused)
}

// Pause suspends an in-progress transfer.
func (m *Manager) Pause(transferID string) error {
	return m.setStatus(transferID, StatusPaused, StatusInProgress)
}

// Cancel abandons a live transfer and removes it from the table.
func (m *Manager) Cancel(transferID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.transfers[transferID]
	if !ok {
		return ErrTransferNotFound
	}
	p.Status = StatusCancelled
	delete(m.transfers, transferID)
	m.log.Infof("transfer %s cancelled", transferID)
	return nil
}

// Advance records transferred bytes and refreshes the speed estimate.
func (m *Manager) Advance(transferID string, bytes uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.transfers[transferID]
	if !ok {
		return ErrTransferNotFound
	}
	if p.Status != StatusInProgress {
		return ErrInvalidState
	}

	p.TransferredSize += bytes
	if p.TransferredSize > p.TotalSize {
		p.TransferredSize = p.TotalSize
	}
	if elapsed := time.Since(p.StartedAt); elapsed > 0 {
		p.SpeedBps = uint64(float64(p.TransferredSize) / elapsed.Seconds())
		if p.SpeedBps > 0 {
			remaining := p.TotalSize - p.TransferredSize
			p.EstimatedLeft = time.Duration(float64(remaining)/float64(p.SpeedBps)) * time.Second
		}
	}
	return nil
}

// Complete finishes a transfer and returns its result.
func (m *Manager) Complete(transferID string) (*Result, error) {
	return m.finish(transferID, true, "")
}

// Fail finishes a transfer with an error reason.
func (m *Manager) Fail(transferID, reason string) (*Result, error) {
	return m.finish(transferID, false, reason)
}

func (m *Manager) finish(transferID string, success bool, reason string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.transfers[transferID]
	if !ok {
		return nil, ErrTransferNotFound
	}
	delete(m.transfers, transferID)

	if success {
		p.Status = StatusCompleted
	} else {
		p.Status = StatusFailed
	}
	result := &Result{
		TransferID: transferID,
		Success:    success,
		Err:        reason,
		FinalSize:  p.TransferredSize,
		Duration:   time.Since(p.StartedAt),
	}
	m.log.Infof("transfer %s finished: success=%v", transferID, success)
	return result, nil
}

func (m *Manager) setStatus(transferID string, to Status, from ...Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.transfers[transferID]
	if !ok {
		return ErrTransferNotFound
	}
	legal := false
	for _, s := range from {
		if p.Status == s {
			legal = true
			break
		}
	}
	if !legal {
		return ErrInvalidState
	}
	p.Status = to
	return nil
}

// Progress returns a copy of one transfer's state.
func (m *Manager) Progress(transferID string) (*Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.transfers[transferID]
	if !ok {
		return nil, ErrTransferNotFound
	}
	out := *p
	return &out, nil
}

// ActiveTransfers returns copies of every live transfer.
func (m *Manager) ActiveTransfers() []Progress {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Progress, 0, len(m.transfers))
	for _, p := range m.transfers {
		out = append(out, *p)
	}
	return out
}
