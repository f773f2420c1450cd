package transport

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"sync"
)

const (
	rxQueue = 16
	txQueue = 16
)

// Stream is a Transport over any byte stream, such as a serial port.
type Stream struct {
	rw         io.ReadWriteCloser
	terminator byte
	maxFrame   int

	rx chan Frame
	tx chan []byte

	ctx        context.Context
	cancel     context.CancelFunc
	readDone   chan struct{}
	writerDone chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewStream starts framing rw. Frames longer than maxFrame bytes are
// reported as ErrFrameOverflow.
func NewStream(rw io.ReadWriteCloser, terminator byte, maxFrame int) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		rw:         rw,
		terminator: terminator,
		maxFrame:   maxFrame,
		rx:         make(chan Frame, rxQueue),
		tx:         make(chan []byte, txQueue),
		ctx:        ctx,
		cancel:     cancel,
		readDone:   make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go s.readLoop()
	go s.writeLoop()
	return s
}

// ReadFrame returns the next received frame without blocking.
func (s *Stream) ReadFrame() (Frame, bool) {
	select {
	case f := <-s.rx:
		return f, true
	default:
		return Frame{}, false
	}
}

// WriteFrame queues payload plus terminator. It never blocks.
func (s *Stream) WriteFrame(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	buf := make([]byte, len(payload)+1)
	copy(buf, payload)
	buf[len(payload)] = s.terminator

	select {
	case s.tx <- buf:
		return nil
	default:
		return ErrTxQueueFull
	}
}

// Close stops both goroutines and closes the underlying stream. Frames
// already queued for transmission are written first.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.writerDone
	err := s.rw.Close()
	<-s.readDone
	return err
}

func (s *Stream) readLoop() {
	defer close(s.readDone)

	framer := NewFramer(s.terminator, s.maxFrame)
	buf := make([]byte, 64)
	for {
		n, err := s.rw.Read(buf)
		for _, b := range buf[:n] {
			frame, ok := framer.Push(b)
			if !ok {
				continue
			}
			select {
			case s.rx <- frame:
			case <-s.ctx.Done():
				return
			}
		}
		if err != nil {
			if s.ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Printf("transport: read error: %v", err)
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}
	}
}

func (s *Stream) writeLoop() {
	defer close(s.writerDone)

	for {
		select {
		case buf := <-s.tx:
			s.write(buf)
		case <-s.ctx.Done():
			for {
				select {
				case buf := <-s.tx:
					s.write(buf)
				default:
					return
				}
			}
		}
	}
}

func (s *Stream) write(buf []byte) {
	if _, err := s.rw.Write(buf); err != nil {
		log.Printf("transport: write error: %v", err)
	}
}
