package filetransfer

import (
	"errors"
	"testing"
)

func TestSizeCapBothDirections(t *testing.T) {
	m := NewManager(ManagerConfig{})

	if _, err := m.BeginSend("huge.bin", "peer", MaxFileSize+1); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("BeginSend(oversize) error = %v, want ErrFileTooLarge", err)
	}
	if _, err := m.BeginReceive("huge.bin", "peer", MaxFileSize+1); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("BeginReceive(oversize) error = %v, want ErrFileTooLarge", err)
	}
	if _, err := m.BeginSend("ok.bin", "peer", MaxFileSize); err != nil {
		t.Errorf("BeginSend(at cap) error = %v, want nil", err)
	}
}

func TestTransferLifecycle(t *testing.T) {
	m := NewManager(ManagerConfig{})
	id, err := m.BeginSend("doc.pdf", "peer", 10_000)
	if err != nil {
		t.Fatalf("BeginSend() error = %v", err)
	}

	if err := m.Advance(id, 100); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Advance(pending) error = %v, want ErrInvalidState", err)
	}

	if err := m.Start(id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Advance(id, 4000); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	p, _ := m.Progress(id)
	if p.TransferredSize != 4000 || p.Status != StatusInProgress {
		t.Errorf("progress = %+v, want 4000 in-progress", p)
	}

	// Pause keeps the offset for resume.
	if err := m.Pause(id); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := m.Start(id); err != nil {
		t.Fatalf("resume Start() error = %v", err)
	}
	p, _ = m.Progress(id)
	if p.TransferredSize != 4000 {
		t.Errorf("resume lost the byte offset: %d", p.TransferredSize)
	}

	m.Advance(id, 6000)
	result, err := m.Complete(id)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !result.Success || result.FinalSize != 10_000 {
		t.Errorf("result = %+v, want success at 10000 bytes", result)
	}
	if _, err := m.Progress(id); !errors.Is(err, ErrTransferNotFound) {
		t.Error("completed transfer should leave the table")
	}
}

func TestAdvanceClampsToTotal(t *testing.T) {
	m := NewManager(ManagerConfig{})
	id, _ := m.BeginReceive("blob", "peer", 100)
	m.Start(id)
	m.Advance(id, 1000)
	p, _ := m.Progress(id)
	if p.TransferredSize != 100 {
		t.Errorf("TransferredSize = %d, want clamped to 100", p.TransferredSize)
	}
}

func TestCancel(t *testing.T) {
	m := NewManager(ManagerConfig{})
	id, _ := m.BeginSend("x", "peer", 10)

	if err := m.Cancel(id); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := m.Cancel(id); !errors.Is(err, ErrTransferNotFound) {
		t.Errorf("second Cancel() error = %v, want ErrTransferNotFound", err)
	}
}

func TestFail(t *testing.T) {
	m := NewManager(ManagerConfig{})
	id, _ := m.BeginSend("x", "peer", 10)
	m.Start(id)

	result, err := m.Fail(id, "peer vanished")
	if err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if result.Success || result.Err != "peer vanished" {
		t.Errorf("result = %+v, want failure with reason", result)
	}
}

func TestActiveTransfers(t *testing.T) {
	m := NewManager(ManagerConfig{})
	m.BeginSend("a", "peer", 10)
	m.BeginReceive("b", "peer", 10)
	if got := len(m.ActiveTransfers()); got != 2 {
		t.Errorf("ActiveTransfers() = %d, want 2", got)
	}
}
