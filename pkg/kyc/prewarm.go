package kyc

import (
	"context"
	"log"
	"os"
	"time"
)

// Prewarmer loads the face cascade on a background goroutine so service
// startup is not blocked by model initialization. The first request landing
// before readiness blocks in Detector until the load completes; the loader
// goroutine holds no resources and never prevents process shutdown.
type Prewarmer struct {
	ready chan struct{}
	det   *FaceDetector
	err   error
}

// NewPrewarmer starts loading the cascade at path immediately.
func NewPrewarmer(path string) *Prewarmer {
	p := &Prewarmer{ready: make(chan struct{})}
	go func() {
		start := time.Now()
		data, err := os.ReadFile(path)
		if err == nil {
			p.det, p.err = NewFaceDetector(data)
		} else {
			p.err = err
		}
		close(p.ready)
		if p.err != nil {
			log.Printf("face model load failed (%s): %v", path, p.err)
		} else {
			log.Printf("face model ready in %s", time.Since(start).Round(time.Millisecond))
		}
	}()
	return p
}

// Detector blocks until the model is loaded (or ctx expires) and returns the
// shared detector. A load failure is returned to every caller; the pipeline
// maps it to skipped face analyses rather than failed submissions.
func (p *Prewarmer) Detector(ctx context.Context) (*FaceDetector, error) {
	select {
	case <-p.ready:
		return p.det, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready reports whether the background load has finished, without blocking.
func (p *Prewarmer) Ready() bool {
	select {
	case <-p.ready:
		return true
	default:
		return false
	}
}
