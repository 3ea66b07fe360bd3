package sahi

import (
	"context"
	"image"
	"io"
	"sync"

	"github.com/culitrap/go-sahi/postprocess/result"
	"github.com/pkg/errors"
)

// ErrPoolClosed is returned when borrowing from a closed Pool
var ErrPoolClosed = errors.New("detector pool closed")

// Pool is a simple pool of detector instances for backends that are not safe
// for concurrent use, such as an OpenCV network.  The Pool itself implements
// Detector by borrowing an instance for the duration of each call.
type Pool struct {
	// pool of detectors
	detectors chan Detector
	// all detectors opened, for closing
	opened []Detector
	// size of pool
	size   int
	close  sync.Once
	closed chan struct{}
}

// NewPool creates a pool of size detectors using the factory, which is passed
// the index of the instance being created
func NewPool(size int, factory func(i int) (Detector, error)) (*Pool, error) {

	if size < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "pool size %d must be positive", size)
	}

	p := &Pool{
		detectors: make(chan Detector, size),
		opened:    make([]Detector, 0, size),
		size:      size,
		closed:    make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		det, err := factory(i)

		if err != nil {
			// close any instances that may have been created before receiving
			// the error
			p.Close()
			return nil, errors.Wrapf(err, "error creating detector %d", i)
		}

		p.opened = append(p.opened, det)

		// attach to pool
		p.Return(det)
	}

	return p, nil
}

// Size returns the number of detectors in the pool
func (p *Pool) Size() int {
	return p.size
}

// Get borrows a detector from the pool, blocking until one is available or
// the context is done
func (p *Pool) Get(ctx context.Context) (Detector, error) {
	select {
	case det := <-p.detectors:
		return det, nil
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Return a detector to the pool
func (p *Pool) Return(det Detector) {
	select {
	case <-p.closed:
		// pool is closed, instance was already closed with it
		return
	default:
	}

	select {
	case p.detectors <- det:
	default:
		// pool is full
	}
}

// Detect borrows a detector, runs it on the tile and returns it to the pool
func (p *Pool) Detect(ctx context.Context, tile image.Image,
	confidenceFloor float32) ([]result.LocalDetection, error) {

	det, err := p.Get(ctx)

	if err != nil {
		return nil, err
	}

	defer p.Return(det)

	return det.Detect(ctx, tile, confidenceFloor)
}

// Close the pool and every detector in it that implements io.Closer.  It
// must not be called while detectors are still borrowed
func (p *Pool) Close() error {

	var err error

	p.close.Do(func() {
		close(p.closed)

		// drain idle detectors so Get can not hand them out
		for len(p.detectors) > 0 {
			<-p.detectors
		}

		for _, det := range p.opened {
			if c, ok := det.(io.Closer); ok {
				if cerr := c.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}
		}
	})

	return err
}
