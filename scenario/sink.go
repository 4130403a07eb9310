package scenario

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// SinkConfig models optional configuration for NewSink.
type SinkConfig struct {
	// Buffer is the capacity of the channel between Send and the writer.
	//
	// Defaults to 256, if 0.
	Buffer int

	// MaxSize is the maximum number of records per write.
	//
	// Defaults to 64, if 0.
	MaxSize int

	// MinSize is the (target) minimum number of records per write. Once
	// the first record of a batch has been received, the writer waits at
	// most PartialTimeout for the rest.
	//
	// Defaults to 16, if 0.
	MinSize int

	// PartialTimeout bounds the time a record may wait to be written.
	//
	// Defaults to 50ms, if 0.
	PartialTimeout time.Duration
}

// Sink streams records to an io.Writer as JSON lines, from a background
// goroutine, in batches. Send blocks only while the buffer is full.
type Sink struct {
	w         io.Writer
	ch        chan Record
	done      chan struct{}
	err       error
	cfg       SinkConfig
	closeOnce sync.Once
	written   atomic.Int64
	batches   atomic.Int64
}

// NewSink starts a sink writing to w. The cfg parameter may be nil. The
// sink must be closed.
func NewSink(w io.Writer, cfg *SinkConfig) *Sink {
	if w == nil {
		panic(`scenario: nil writer`)
	}
	x := &Sink{
		w:    w,
		done: make(chan struct{}),
		cfg: SinkConfig{
			Buffer:         256,
			MaxSize:       64,
			MinSize:       16,
			PartialTimeout: 50 * time.Millisecond,
		},
	}
	if cfg != nil {
		if cfg.Buffer != 0 {
			x.cfg.Buffer = cfg.Buffer
		}
		if cfg.MaxSize != 0 {
			x.cfg.MaxSize = cfg.MaxSize
		}
		if cfg.MinSize != 0 {
			x.cfg.MinSize = cfg.MinSize
		}
		if cfg.PartialTimeout != 0 {
			x.cfg.PartialTimeout = cfg.PartialTimeout
		}
	}
	x.cfg.MinSize = min(x.cfg.MinSize, x.cfg.MaxSize)
	x.ch = make(chan Record, x.cfg.Buffer)
	go x.run()
	return x
}

// Send queues rec to be written. It must not be called after Close.
func (x *Sink) Send(rec Record) {
	x.ch <- rec
}

// Close flushes every queued record, and stops the sink, returning the
// first write error, if any.
func (x *Sink) Close() error {
	x.closeOnce.Do(func() { close(x.ch) })
	<-x.done
	return x.err
}

// Written returns the number of records written.
func (x *Sink) Written() int64 { return x.written.Load() }

// Batches returns the number of writes performed.
func (x *Sink) Batches() int64 { return x.batches.Load() }

func (x *Sink) run() {
	defer close(x.done)
	var buf []byte
	for {
		var n int64
		buf = buf[:0]
		err := x.receive(func(rec Record) {
			buf = rec.AppendJSON(buf)
			buf = append(buf, '\n')
			n++
		})
		// after a write error, records are still drained, so Send won't block
		if n != 0 && x.err == nil {
			if _, werr := x.w.Write(buf); werr != nil {
				x.err = werr
			} else {
				x.written.Add(n)
				x.batches.Add(1)
			}
		}
		if err != nil {
			return
		}
	}
}

// receive passes a batch of records to handler, blocking until at least one
// is available, returning io.EOF once the channel is closed and drained.
//
// TODO: replace with longpoll.Channel once a go-longpoll release can be
// required. SinkConfig mirrors its ChannelConfig field names.
func (x *Sink) receive(handler func(rec Record)) error {
	rec, ok := <-x.ch
	if !ok {
		return io.EOF
	}
	handler(rec)
	size := 1

	if size < x.cfg.MinSize {
		timer := time.NewTimer(x.cfg.PartialTimeout)
		defer timer.Stop()
	minSizeLoop:
		for size < x.cfg.MinSize {
			select {
			case <-timer.C:
				break minSizeLoop
			case rec, ok := <-x.ch:
				if !ok {
					return io.EOF
				}
				handler(rec)
				size++
			}
		}
	}

	for size < x.cfg.MaxSize {
		select {
		case rec, ok := <-x.ch:
			if !ok {
				return io.EOF
			}
			handler(rec)
			size++
		default:
			return nil
		}
	}
	return nil
}
