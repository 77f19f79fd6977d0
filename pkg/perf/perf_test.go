package perf

import (
	"testing"
	"time"

	"github.com/cecdesk/core/pkg/capture"
)

func TestBufferPool(t *testing.T) {
	pool := NewBufferPool(1024, 10)

	buf1 := pool.Acquire()
	_ = pool.Acquire()

	allocated, reused := pool.Stats()
	if allocated != 2 || reused != 0 {
		t.Errorf("Stats() = (%d, %d), want (2, 0)", allocated, reused)
	}

	pool.Release(buf1)
	buf3 := pool.Acquire()
	if len(buf3) != 0 {
		t.Errorf("reacquired buffer length = %d, want 0", len(buf3))
	}

	allocated, reused = pool.Stats()
	if allocated != 2 || reused != 1 {
		t.Errorf("Stats() = (%d, %d), want (2, 1)", allocated, reused)
	}
}

func TestBufferPoolDropsWhenFull(t *testing.T) {
	pool := NewBufferPool(64, 2)
	for i := 0; i < 4; i++ {
		pool.Release(make([]byte, 0, 64))
	}
	if got := pool.Idle(); got != 2 {
		t.Errorf("Idle() = %d, want 2", got)
	}
}

func TestFrameQueueEviction(t *testing.T) {
	q := NewFrameQueue(3)

	for i := 0; i < 5; i++ {
		q.Push(capture.VideoFrame{ID: uint64(i), Data: make([]byte, 1024)})
	}

	count, bytes, dropped := q.Stats()
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if bytes != 3*1024 {
		t.Errorf("bytes = %d, want %d", bytes, 3*1024)
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}

	// FIFO: oldest surviving frame first.
	frame, ok := q.Pop()
	if !ok || frame.ID != 2 {
		t.Errorf("Pop() = %d, %v; want frame 2", frame.ID, ok)
	}
}

func TestFrameQueuePopEmpty(t *testing.T) {
	q := NewFrameQueue(3)
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue should report false")
	}
}

func TestTransmissionOptimizer(t *testing.T) {
	t.Run("no samples keeps current", func(t *testing.T) {
		o := NewTransmissionOptimizer(500_000, 10_000_000, 4_000_000)
		if got := o.AdaptBitrate(); got != 4_000_000 {
			t.Errorf("AdaptBitrate() = %d, want 4000000", got)
		}
	})

	t.Run("high latency backs off", func(t *testing.T) {
		o := NewTransmissionOptimizer(500_000, 10_000_000, 4_000_000)
		for i := 0; i < 10; i++ {
			o.RecordLatency(200)
			o.RecordBandwidth(1_000_000)
		}
		if got := o.AdaptBitrate(); got != 3_200_000 {
			t.Errorf("AdaptBitrate() = %d, want 3200000 (x0.8)", got)
		}
	})

	t.Run("moderate latency eases off", func(t *testing.T) {
		o := NewTransmissionOptimizer(500_000, 10_000_000, 4_000_000)
		for i := 0; i < 10; i++ {
			o.RecordLatency(120)
			o.RecordBandwidth(8_000_000)
		}
		if got := o.AdaptBitrate(); got != 3_600_000 {
			t.Errorf("AdaptBitrate() = %d, want 3600000 (x0.9)", got)
		}
	})

	t.Run("good conditions walk back toward target", func(t *testing.T) {
		o := NewTransmissionOptimizer(500_000, 10_000_000, 4_000_000)
		for i := 0; i < 10; i++ {
			o.RecordLatency(200)
			o.RecordBandwidth(8_000_000)
		}
		o.AdaptBitrate() // back off first

		// Refill the window with good samples.
		for i := 0; i < 100; i++ {
			o.RecordLatency(30)
		}
		before := o.CurrentBitrate()
		after := o.AdaptBitrate()
		if after <= before {
			t.Errorf("AdaptBitrate() = %d, want growth above %d", after, before)
		}
	})

	t.Run("clamped to bounds", func(t *testing.T) {
		o := NewTransmissionOptimizer(3_000_000, 10_000_000, 3_100_000)
		for i := 0; i < 100; i++ {
			o.RecordLatency(500)
			o.RecordBandwidth(1)
		}
		for i := 0; i < 20; i++ {
			o.AdaptBitrate()
		}
		if got := o.CurrentBitrate(); got != 3_000_000 {
			t.Errorf("CurrentBitrate() = %d, want clamped to 3000000", got)
		}
	})
}

func TestInputOptimizerBatching(t *testing.T) {
	o := NewInputOptimizer(100, 10*time.Millisecond)

	now := time.Now()
	o.Queue(InputEvent{Kind: InputMouseMove, Timestamp: now, Data: []byte{1}})
	o.Queue(InputEvent{Kind: InputMouseMove, Timestamp: now.Add(time.Millisecond), Data: []byte{2}})
	o.Queue(InputEvent{Kind: InputKeyDown, Timestamp: now.Add(2 * time.Millisecond), Data: []byte{3}})

	// Before the interval elapses the batch is empty.
	if batch := o.Batch(); batch != nil {
		t.Errorf("Batch() before interval = %v, want nil", batch)
	}

	time.Sleep(15 * time.Millisecond)
	batch := o.Batch()
	if len(batch) != 2 {
		t.Fatalf("Batch() returned %d events, want 2 (moves coalesced)", len(batch))
	}
	if batch[0].Kind != InputKeyDown {
		t.Errorf("batch[0] = %s, want KeyDown (higher priority)", batch[0].Kind)
	}
	if batch[1].Kind != InputMouseMove || batch[1].Data[0] != 2 {
		t.Errorf("batch[1] = %s/%v, want the latest MouseMove", batch[1].Kind, batch[1].Data)
	}
}

func TestInputOptimizerDropsLowestPriority(t *testing.T) {
	o := NewInputOptimizer(2, time.Millisecond)

	o.Queue(InputEvent{Kind: InputKeyDown})
	o.Queue(InputEvent{Kind: InputMouseMove})
	o.Queue(InputEvent{Kind: InputMouseClick}) // evicts the mouse move

	time.Sleep(5 * time.Millisecond)
	batch := o.Batch()
	for _, ev := range batch {
		if ev.Kind == InputMouseMove {
			t.Error("lowest-priority event should have been dropped")
		}
	}
	if len(batch) != 2 {
		t.Errorf("batch size = %d, want 2", len(batch))
	}
}

func TestInputLatencySLO(t *testing.T) {
	o := NewInputOptimizer(100, time.Millisecond)

	for i := 0; i < 10; i++ {
		o.RecordLatency(50)
	}
	if !o.MeetsLatencyTarget() {
		t.Error("50ms average should meet the target")
	}

	for i := 0; i < 90; i++ {
		o.RecordLatency(200)
	}
	if o.MeetsLatencyTarget() {
		t.Error("185ms average should miss the target")
	}
}

func TestMonitor(t *testing.T) {
	pool := NewBufferPool(64, 4)
	frames := NewFrameQueue(4)
	tx := NewTransmissionOptimizer(500_000, 10_000_000, 4_000_000)
	input := NewInputOptimizer(16, time.Millisecond)

	pool.Acquire()
	frames.Push(capture.VideoFrame{ID: 1, Data: make([]byte, 512)})
	input.RecordLatency(40)

	monitor := NewMonitor(pool, frames, tx, input)
	metrics := monitor.Collect()

	if metrics.BuffersAllocated != 1 {
		t.Errorf("BuffersAllocated = %d, want 1", metrics.BuffersAllocated)
	}
	if metrics.QueuedFrames != 1 || metrics.QueuedBytes != 512 {
		t.Errorf("frame queue = %d frames / %d bytes, want 1/512", metrics.QueuedFrames, metrics.QueuedBytes)
	}
	if metrics.CurrentBitrate != 4_000_000 {
		t.Errorf("CurrentBitrate = %d, want 4000000", metrics.CurrentBitrate)
	}

	sum := monitor.Summarize()
	if !sum.MeetsInputLatencySLO {
		t.Error("40ms input latency should meet the SLO")
	}
	if len(monitor.History()) != 1 {
		t.Errorf("history length = %d, want 1", len(monitor.History()))
	}
}
