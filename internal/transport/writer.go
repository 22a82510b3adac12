package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcsignal/internal/util"
)

// writer is the single goroutine allowed to write data frames to the
// WebSocket. It holds frames behind an open gate and then drains them in
// arrival order.
type writer struct {
	mu      sync.Mutex
	pending util.Queue[[]byte]
	open    bool
	stopped bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newWriter() *writer {
	return &writer{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// enqueue appends a frame. It returns ErrTransportUnavailable when the frame
// was buffered ahead of the open gate and ErrChannelClosed when it was
// dropped because the writer has stopped.
func (w *writer) enqueue(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrChannelClosed
	}
	w.pending.Push(frame)

	select {
	case w.wake <- struct{}{}:
	default:
	}

	if !w.open {
		return ErrTransportUnavailable
	}
	return nil
}

// loop waits for the connection to open, writes the registration frame, and
// then drains queued frames until shutdown.
func (w *writer) loop(openSignal <-chan struct{}, conn func() *websocket.Conn, register func() ([]byte, error)) {
	defer close(w.done)

	// Phase 1: wait for the WebSocket to open.
	select {
	case <-openSignal:
	case <-w.stop:
		return
	}
	ws := conn()

	frame, err := register()
	if err != nil {
		util.LogError("encode registration: %v", err)
		return
	}
	if err := writeFrame(ws, frame); err != nil {
		util.LogError("failed to register on relay: %v", err)
		return
	}
	util.LogInfo("registered on relay")

	w.mu.Lock()
	w.open = true
	w.mu.Unlock()

	// Phase 2: drain in batches. Frames arriving during a batch are written
	// in the next one, after everything queued before them.
	for {
		if !w.flush(ws) {
			return
		}
		select {
		case <-w.wake:
		case <-w.stop:
			w.flush(ws)
			return
		}
	}
}

// flush writes every queued frame. It reports false if a write failed.
func (w *writer) flush(ws *websocket.Conn) bool {
	for {
		w.mu.Lock()
		batch := w.pending.Drain()
		w.mu.Unlock()

		if len(batch) == 0 {
			return true
		}
		for _, frame := range batch {
			if err := writeFrame(ws, frame); err != nil {
				util.LogError("failed to write relay frame: %v", err)
				return false
			}
		}
	}
}

// shutdown refuses further frames, lets the loop flush what is already
// queued, and waits for it to exit.
func (w *writer) shutdown() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stop)
	<-w.done
}

func writeFrame(ws *websocket.Conn, frame []byte) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return err
	}
	util.Stats.AddSent()
	return nil
}
