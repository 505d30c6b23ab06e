package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"golang.org/x/sync/errgroup"

	"projection-mapper/internal/blendmap"
	"projection-mapper/internal/fence"
	"projection-mapper/internal/peer"
)

// Frame is what one iteration of the loop produced.
type Frame struct {
	Index  uint64
	Images map[string]image.Image
}

// Frame advances the blending then renders every local camera. It waits
// for the previous frame to be consumed.
func (s *Scene) Frame(ctx context.Context) error {
	return s.fence.Produce(ctx, func() error {
		if err := s.RenderBlending(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.log.Warn("blending skipped", "err", err)
		}
		cams := s.Cameras()
		images := make(map[string]image.Image, len(cams))
		for _, c := range cams {
			images[c.Name()] = c.Image()
		}
		s.last = Frame{Index: s.frames.Add(1), Images: images}
		return nil
	})
}

// Consume waits for a frame and hands it to fn.
func (s *Scene) Consume(ctx context.Context, fn func(Frame) error) error {
	return s.fence.Consume(ctx, func() error { return fn(s.last) })
}

// Run produces a frame every interval and feeds them to sink until ctx is
// cancelled or the scene is closed. Sink errors are logged.
func (s *Scene) Run(ctx context.Context, interval time.Duration, sink func(Frame) error) error {
	if sink == nil {
		sink = func(Frame) error { return nil }
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			err := s.Consume(gctx, sink)
			switch {
			case err == nil:
			case errors.Is(err, fence.ErrClosed), gctx.Err() != nil:
				return err
			default:
				s.log.Warn("frame output failed", "err", err)
			}
		}
	})
	g.Go(func() error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-t.C:
				if err := s.Frame(gctx); err != nil {
					return err
				}
			}
		}
	})
	err := g.Wait()
	if errors.Is(err, fence.ErrClosed) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		return nil
	}
	return err
}

// Frames returns the number of frames produced.
func (s *Scene) Frames() uint64 { return s.frames.Load() }

// Close stops the frame loop.
func (s *Scene) Close() { s.fence.Close() }

// Receive applies a replication message from another process.
func (s *Scene) Receive(m peer.Message) error {
	switch m.Type {
	case peer.TypeBlendingUpdated:
		s.BlendingUpdated()
	case peer.TypeGeometry:
		o, ok := s.Object(m.Target)
		if !ok {
			return fmt.Errorf("%w: object %s", ErrNotFound, m.Target)
		}
		if err := o.UnmarshalGeometry(m.Payload); err != nil {
			return fmt.Errorf("scene: geometry of %s: %w", m.Target, err)
		}
	case peer.TypeBlendingMap:
		var bm blendmap.Map
		if err := bm.UnmarshalBinary(m.Payload); err != nil {
			return fmt.Errorf("scene: blending map: %w", err)
		}
		s.setBlendingMap(&bm)
	case peer.TypeCalibration:
		c, ok := s.Camera(m.Target)
		if !ok {
			return fmt.Errorf("%w: camera %s", ErrNotFound, m.Target)
		}
		var st calibrationState
		if err := json.Unmarshal(m.Payload, &st); err != nil {
			return fmt.Errorf("scene: calibration of %s: %w", m.Target, err)
		}
		st.apply(c)
	default:
		s.log.Debug("ignored message", "type", m.Type, "from", m.From)
	}
	return nil
}

// ShareCalibration sends the parameters and points of a camera to the
// other processes.
func (s *Scene) ShareCalibration(ctx context.Context, name string) error {
	if s.opts.Link == nil {
		return nil
	}
	c, ok := s.Camera(name)
	if !ok {
		return fmt.Errorf("%w: camera %s", ErrNotFound, name)
	}
	data, err := json.Marshal(stateOf(c))
	if err != nil {
		return err
	}
	return s.opts.Link.Send(ctx, peer.TypeCalibration, name, data)
}
