package recorder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config controls the composite surface and encoder cadence.
type Config struct {
	Width     int
	Height    int
	FrameRate int
	// ChunkInterval is the encoder flush interval.
	ChunkInterval time.Duration
}

// DefaultConfig is the standard composite surface: 1280x720 at 15 fps with
// one-second chunks.
func DefaultConfig() Config {
	return Config{
		Width:         1280,
		Height:        720,
		FrameRate:     15,
		ChunkInterval: time.Second,
	}
}

// OverlayFunc supplies the per-frame overlay (caption, timestamp,
// indicator). Called once per composited frame.
type OverlayFunc func() Overlay

// Recorder produces one composite video artifact per session: the screen
// stream with an optional camera inset, encoded into a growing sequence of
// chunks. Chunks are handed off incrementally, never buffered as a single
// region for the whole session.
type Recorder struct {
	cfg           Config
	acquireScreen AcquireFunc
	acquireCamera AcquireFunc
	overlay       OverlayFunc
	onChunk       func(seq int, bytes int)
	logger        *slog.Logger

	mu     sync.Mutex
	active bool
	screen Source
	camera Source
	chunks [][]byte
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a recorder. acquireCamera may be nil when camera monitoring is
// not configured; onChunk, if non-nil, observes every flushed chunk.
func New(cfg Config, acquireScreen, acquireCamera AcquireFunc,
	overlay OverlayFunc, onChunk func(seq int, bytes int), logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if overlay == nil {
		overlay = func() Overlay { return Overlay{} }
	}
	return &Recorder{
		cfg:           cfg,
		acquireScreen: acquireScreen,
		acquireCamera: acquireCamera,
		overlay:       overlay,
		onChunk:       onChunk,
		logger:        logger,
	}
}

// Active reports whether a recording is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// ChunkCount returns the number of chunks flushed so far.
func (r *Recorder) ChunkCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

// Start acquires the media sources and launches the compositing loop. The
// screen stream is required; camera acquisition failure is non-fatal and
// degrades the recording to screen-only.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return fmt.Errorf("recording already in progress")
	}
	r.mu.Unlock()

	var screen, camera Source
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		var err error
		screen, err = r.acquireScreen(gctx)
		if err != nil {
			return fmt.Errorf("failed to acquire screen stream: %w", err)
		}
		return nil
	})
	if r.acquireCamera != nil {
		grp.Go(func() error {
			var err error
			camera, err = r.acquireCamera(gctx)
			if err != nil {
				r.logger.Warn("camera unavailable, recording screen only", "error", err)
				camera = nil
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		if camera != nil {
			_ = camera.Close()
		}
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	r.mu.Lock()
	r.active = true
	r.screen = screen
	r.camera = camera
	r.chunks = nil
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go r.loop(loopCtx, done)
	return nil
}

// loop composites one frame per tick and flushes a chunk every
// ChunkInterval worth of frames. Only drawing and encoding handoff happen
// here; artifact assembly waits until stop time.
func (r *Recorder) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	frameInterval := time.Second / time.Duration(r.cfg.FrameRate)
	framesPerChunk := int(r.cfg.ChunkInterval / frameInterval)
	if framesPerChunk < 1 {
		framesPerChunk = 1
	}

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	var chunk bytes.Buffer
	framesInChunk := 0
	size := image.Pt(r.cfg.Width, r.cfg.Height)

	for {
		select {
		case <-ctx.Done():
			r.flushChunk(&chunk)
			return
		case <-ticker.C:
			screenFrame, err := r.screen.NextFrame()
			if err != nil {
				r.logger.Warn("screen frame unavailable", "error", err)
				continue
			}
			var cameraFrame image.Image
			if r.camera != nil {
				cameraFrame, err = r.camera.NextFrame()
				if err != nil {
					cameraFrame = nil
				}
			}

			frame := CompositeFrame(screenFrame, cameraFrame, r.overlay(), size)
			if err := encodeFrame(&chunk, frame); err != nil {
				r.logger.Warn("failed to encode frame", "error", err)
				continue
			}
			framesInChunk++
			if framesInChunk >= framesPerChunk {
				r.flushChunk(&chunk)
				framesInChunk = 0
			}
		}
	}
}

func encodeFrame(buf *bytes.Buffer, frame *image.RGBA) error {
	var one bytes.Buffer
	if err := jpeg.Encode(&one, frame, &jpeg.Options{Quality: 70}); err != nil {
		return err
	}
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(one.Len()))
	buf.Write(size[:])
	buf.Write(one.Bytes())
	return nil
}

func (r *Recorder) flushChunk(chunk *bytes.Buffer) {
	if chunk.Len() == 0 {
		return
	}
	data := make([]byte, chunk.Len())
	copy(data, chunk.Bytes())
	chunk.Reset()

	r.mu.Lock()
	r.chunks = append(r.chunks, data)
	seq := len(r.chunks)
	r.mu.Unlock()

	if r.onChunk != nil {
		r.onChunk(seq, len(data))
	}
}

// Stop cancels the compositing loop, flushes the final chunk, stops every
// media source, and concatenates the chunk sequence into one compressed
// artifact. Partial recordings produced by a hard cancel are valid; the
// sources are released whether or not the artifact is used afterwards.
func (r *Recorder) Stop() ([]byte, int, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, 0, fmt.Errorf("no recording in progress")
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done

	r.mu.Lock()
	if r.screen != nil {
		if err := r.screen.Close(); err != nil {
			r.logger.Warn("failed to close screen source", "error", err)
		}
		r.screen = nil
	}
	if r.camera != nil {
		if err := r.camera.Close(); err != nil {
			r.logger.Warn("failed to close camera source", "error", err)
		}
		r.camera = nil
	}
	chunks := r.chunks
	r.chunks = nil
	r.active = false
	r.mu.Unlock()

	raw := assembleArtifact(chunks)
	artifact, err := compressArtifact(raw)
	if err != nil {
		return nil, len(chunks), fmt.Errorf("failed to finalize artifact: %w", err)
	}
	return artifact, len(chunks), nil
}
