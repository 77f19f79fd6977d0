package perf

import (
	"sync"
	"sync/atomic"

	"github.com/cecdesk/core/pkg/capture"
)

// FrameQueue is a bounded FIFO of captured frames. Pushing onto a full
// queue evicts the oldest frame and counts it as dropped.
type FrameQueue struct {
	mu     sync.Mutex
	frames []capture.VideoFrame
	max    int

	totalBytes atomic.Uint64
	dropped    atomic.Uint64
}

// NewFrameQueue creates a queue holding at most maxFrames.
func NewFrameQueue(maxFrames int) *FrameQueue {
	return &FrameQueue{
		frames: make([]capture.VideoFrame, 0, maxFrames),
		max:    maxFrames,
	}
}

// Push appends a frame, evicting the oldest when full.
func (q *FrameQueue) Push(frame capture.VideoFrame) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) >= q.max {
		old := q.frames[0]
		q.frames = append(q.frames[:0], q.frames[1:]...)
		q.totalBytes.Add(^uint64(len(old.Data) - 1))
		q.dropped.Add(1)
	}
	q.frames = append(q.frames, frame)
	q.totalBytes.Add(uint64(len(frame.Data)))
}

// Pop removes and returns the oldest frame, reporting false when the
// queue is empty.
func (q *FrameQueue) Pop() (capture.VideoFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return capture.VideoFrame{}, false
	}
	frame := q.frames[0]
	q.frames = append(q.frames[:0], q.frames[1:]...)
	q.totalBytes.Add(^uint64(len(frame.Data) - 1))
	return frame, true
}

// Stats returns (queued frames, queued bytes, dropped frames).
func (q *FrameQueue) Stats() (count int, bytes, dropped uint64) {
	q.mu.Lock()
	count = len(q.frames)
	q.mu.Unlock()
	return count, q.totalBytes.Load(), q.dropped.Load()
}

// Clear empties the queue.
func (q *FrameQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = q.frames[:0]
	q.totalBytes.Store(0)
}
