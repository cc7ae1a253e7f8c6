package recorder_test

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/programme-lv/proctor/internal/recorder"
	"github.com/stretchr/testify/require"
)

func acquireStill(src *recorder.StillSource) recorder.AcquireFunc {
	return func(ctx context.Context) (recorder.Source, error) {
		return src, nil
	}
}

func acquireFail(ctx context.Context) (recorder.Source, error) {
	return nil, fmt.Errorf("permission denied")
}

func testConfig() recorder.Config {
	return recorder.Config{
		Width:         160,
		Height:        90,
		FrameRate:     50,
		ChunkInterval: 100 * time.Millisecond,
	}
}

func TestChunkCadenceAndArtifact(t *testing.T) {
	screen := recorder.NewColorSource(color.RGBA{R: 200, A: 255}, 320, 180)
	camera := recorder.NewColorSource(color.RGBA{B: 200, A: 255}, 160, 120)

	var mu sync.Mutex
	var seqs []int
	rec := recorder.New(testConfig(), acquireStill(screen), acquireStill(camera),
		nil, func(seq, bytes int) {
			mu.Lock()
			seqs = append(seqs, seq)
			mu.Unlock()
		}, nil)

	require.NoError(t, rec.Start(context.Background()))
	require.True(t, rec.Active())

	time.Sleep(550 * time.Millisecond)
	artifact, chunks, err := rec.Stop()
	require.NoError(t, err)
	require.False(t, rec.Active())

	// Roughly one chunk per 100ms interval; scheduler jitter allows slack.
	require.GreaterOrEqual(t, chunks, 3)
	require.LessOrEqual(t, chunks, 8)

	mu.Lock()
	require.Len(t, seqs, chunks)
	for i, seq := range seqs {
		require.Equal(t, i+1, seq)
	}
	mu.Unlock()

	decoded, err := recorder.DecodeArtifact(artifact)
	require.NoError(t, err)
	require.Len(t, decoded, chunks)
	for _, chunk := range decoded {
		require.NotEmpty(t, chunk)
	}

	require.True(t, screen.Closed())
	require.True(t, camera.Closed())
	require.Greater(t, screen.FrameCount(), 0)
}

func TestStopWithoutStart(t *testing.T) {
	rec := recorder.New(testConfig(), acquireFail, nil, nil, nil, nil)
	_, _, err := rec.Stop()
	require.Error(t, err)
}

func TestScreenAcquisitionFailureIsFatal(t *testing.T) {
	rec := recorder.New(testConfig(), acquireFail, nil, nil, nil, nil)
	err := rec.Start(context.Background())
	require.Error(t, err)
	require.False(t, rec.Active())
}

func TestCameraFailureDegradesToScreenOnly(t *testing.T) {
	screen := recorder.NewColorSource(color.White, 320, 180)
	rec := recorder.New(testConfig(), acquireStill(screen), acquireFail, nil, nil, nil)

	require.NoError(t, rec.Start(context.Background()))
	time.Sleep(150 * time.Millisecond)

	artifact, chunks, err := rec.Stop()
	require.NoError(t, err)
	require.GreaterOrEqual(t, chunks, 1)

	_, err = recorder.DecodeArtifact(artifact)
	require.NoError(t, err)
}

func TestEarlyStopKeepsPartialRecording(t *testing.T) {
	screen := recorder.NewColorSource(color.White, 320, 180)
	rec := recorder.New(testConfig(), acquireStill(screen), nil, nil, nil, nil)

	require.NoError(t, rec.Start(context.Background()))
	// Stop mid-interval: the partial chunk must still be flushed.
	time.Sleep(60 * time.Millisecond)

	artifact, chunks, err := rec.Stop()
	require.NoError(t, err)
	require.GreaterOrEqual(t, chunks, 1)

	decoded, err := recorder.DecodeArtifact(artifact)
	require.NoError(t, err)
	require.Len(t, decoded, chunks)
}

func TestDoubleStartRefused(t *testing.T) {
	screen := recorder.NewColorSource(color.White, 320, 180)
	rec := recorder.New(testConfig(), acquireStill(screen), nil, nil, nil, nil)

	require.NoError(t, rec.Start(context.Background()))
	require.Error(t, rec.Start(context.Background()))
	_, _, err := rec.Stop()
	require.NoError(t, err)
}

func TestDecodeArtifactRejectsGarbage(t *testing.T) {
	_, err := recorder.DecodeArtifact([]byte("definitely not zstd"))
	require.Error(t, err)
}

func TestCompositeLetterboxesWideScreen(t *testing.T) {
	white := image.NewRGBA(image.Rect(0, 0, 200, 50))
	for y := range 50 {
		for x := range 200 {
			white.Set(x, y, color.White)
		}
	}

	frame := recorder.CompositeFrame(white, nil, recorder.Overlay{}, image.Pt(100, 100))
	require.Equal(t, image.Rect(0, 0, 100, 100), frame.Bounds())

	// A 4:1 source in a square surface leaves black bands top and bottom.
	r, g, b, _ := frame.At(50, 2).RGBA()
	require.Zero(t, r)
	require.Zero(t, g)
	require.Zero(t, b)

	r, g, b, _ = frame.At(50, 50).RGBA()
	require.NotZero(t, r)
	require.NotZero(t, g)
	require.NotZero(t, b)
}

func TestCompositeDrawsCameraInset(t *testing.T) {
	screen := image.NewRGBA(image.Rect(0, 0, 640, 360))
	camera := image.NewRGBA(image.Rect(0, 0, 160, 120))
	blue := color.RGBA{B: 255, A: 255}
	for y := range 120 {
		for x := range 160 {
			camera.Set(x, y, blue)
		}
	}

	size := image.Pt(640, 360)
	frame := recorder.CompositeFrame(screen, camera, recorder.Overlay{Indicator: true}, size)

	// Sample the middle of the bottom-right inset area.
	x := size.X - 16 - 120
	y := size.Y - 16 - 90
	_, _, b, _ := frame.At(x, y).RGBA()
	require.NotZero(t, b)

	// The far side of the canvas stays untouched by the inset.
	r2, g2, b2, _ := frame.At(20, 20).RGBA()
	require.Zero(t, r2)
	require.Zero(t, g2)
	require.Zero(t, b2)
}
