package wshub

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/programme-lv/proctor/internal/recorder"
)

// Stream identifiers for binary frame messages: one id byte followed by a
// JPEG-encoded frame.
const (
	StreamScreen byte = 1
	StreamCamera byte = 2
)

// streamFeed holds the latest decoded frame of one client-pushed media
// stream. The first frame arriving doubles as the permission grant: media
// acquisition suspends until the browser starts pushing.
type streamFeed struct {
	mu      sync.Mutex
	frame   image.Image
	closed  bool
	arrived chan struct{}
	once    sync.Once
}

func newStreamFeed() *streamFeed {
	return &streamFeed{arrived: make(chan struct{})}
}

func (f *streamFeed) push(data []byte) error {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	f.mu.Lock()
	f.frame = img
	f.mu.Unlock()
	f.once.Do(func() { close(f.arrived) })
	return nil
}

// acquire returns a recorder source once the first frame has arrived.
func (f *streamFeed) acquire(ctx context.Context) (recorder.Source, error) {
	select {
	case <-f.arrived:
		return (*wsSource)(f), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("media stream was not granted: %w", ctx.Err())
	}
}

// wsSource adapts a streamFeed to the recorder's Source interface.
type wsSource streamFeed

func (s *wsSource) NextFrame() (image.Image, error) {
	f := (*streamFeed)(s)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.frame == nil {
		return nil, fmt.Errorf("media stream is closed")
	}
	return f.frame, nil
}

func (s *wsSource) Close() error {
	f := (*streamFeed)(s)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.frame = nil
	return nil
}
