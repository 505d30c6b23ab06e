package scene

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"projection-mapper/internal/blendmap"
	"projection-mapper/internal/camera"
	"projection-mapper/internal/peer"
)

// Mode selects how often the blending is computed.
type Mode string

const (
	// ModeOnce computes the blending a single time and keeps it until off.
	ModeOnce Mode = "once"
	// ModeContinuous recomputes the blending every frame.
	ModeContinuous Mode = "continuous"
	ModeOff        Mode = "off"
)

// ParseMode accepts once, continuous and off.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOnce, ModeContinuous, ModeOff:
		return m, nil
	}
	return "", fmt.Errorf("scene: unknown blending mode %q", s)
}

// Path selects the blending implementation.
type Path string

const (
	// PathCompute blends per vertex with the compute device.
	PathCompute Path = "compute"
	// PathMap composes a blending map on the CPU.
	PathMap Path = "map"
)

// ParsePath accepts compute and map.
func ParsePath(s string) (Path, error) {
	switch p := Path(s); p {
	case PathCompute, PathMap:
		return p, nil
	}
	return "", fmt.Errorf("scene: unknown blending path %q", s)
}

// ActivateBlendingMap starts the blending in the given mode; ModeOff
// deactivates it. On the compute path the work happens in the next frames.
// On the map path the map is composed, dilated, sent to the peers and handed
// to the objects right away. Activating twice without deactivating in
// between does nothing.
func (s *Scene) ActivateBlendingMap(ctx context.Context, mode Mode) error {
	if mode == ModeOff {
		s.DeactivateBlendingMap()
		return nil
	}
	s.state.Lock()
	defer s.state.Unlock()
	if s.blendingActive {
		return nil
	}
	s.blendingActive = true

	if s.opts.Path == PathCompute {
		s.computeBlending = true
		s.computeOnce = mode == ModeOnce
		return nil
	}

	m, err := s.composeBlendingMap(ctx)
	if err != nil {
		s.blendingActive = false
		return err
	}
	if s.opts.Master && s.opts.Link != nil {
		if err := s.sendBlendingMap(ctx, m); err != nil {
			s.log.Warn("blending map not sent", "err", err)
		}
	}
	s.setBlendingMap(m)
	s.computeBlending = true
	s.log.Info("camera blending computed", "width", m.Width, "height", m.Height)
	return nil
}

// DeactivateBlendingMap stops the blending. On the compute path the
// objects go back to plain shading at the next frame.
func (s *Scene) DeactivateBlendingMap() {
	s.state.Lock()
	defer s.state.Unlock()
	s.blendingActive = false
	s.computeBlending = false
	if s.opts.Path == PathCompute {
		s.computeOnce = true
		return
	}
	s.setBlendingMap(nil)
	s.log.Info("camera blending deactivated")
}

// composeBlendingMap renders every camera layer in parallel, merges them in
// camera order and dilates the result. Callers hold state.
func (s *Scene) composeBlendingMap(ctx context.Context) (*blendmap.Map, error) {
	w, h := s.opts.MapWidth, s.opts.MapHeight
	cams := s.allCameras()
	layers := make([]*blendmap.Layer, len(cams))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range cams {
		g.Go(func() error {
			l, err := c.BlendingLayer(gctx, w, h)
			if err != nil {
				return fmt.Errorf("scene: blending map of %s: %w", c.Name(), err)
			}
			layers[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := blendmap.New(w, h)
	for i, l := range layers {
		if err := blendmap.Merge(m, l.Map, s.opts.Camera.LegacyTransposedMerge); err != nil {
			return nil, fmt.Errorf("scene: merge %s: %w", cams[i].Name(), err)
		}
	}
	return blendmap.Dilate(m), nil
}

// sendBlendingMap sends m twice, resendDelay apart, so that peers uploading
// through a double buffer display the new map.
func (s *Scene) sendBlendingMap(ctx context.Context, m *blendmap.Map) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.opts.Link.Send(ctx, peer.TypeBlendingMap, "", data); err != nil {
		return err
	}
	select {
	case <-time.After(resendDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.opts.Link.Send(ctx, peer.TypeBlendingMap, "", data)
}

// RenderBlending advances the vertex blending by one frame. A request is
// served by computing the blending (master) or waiting for the master's
// notification (others); once served, a single request is cleared while a
// continuous one repeats. When no request is pending anymore the blending
// of the previous frames is torn down. The map path does nothing here.
func (s *Scene) RenderBlending(ctx context.Context) error {
	if s.opts.Path != PathCompute {
		return nil
	}
	s.state.Lock()
	defer s.state.Unlock()

	if s.computedOnce && s.computeOnce {
		s.computedOnce = false
		s.computeBlending = false
		s.computeOnce = false
		s.computedInPreviousFrame = true
	}

	switch {
	case s.computeBlending:
		if s.computeOnce {
			s.computeBlending = false
			s.computeOnce = false
			s.computedOnce = true
		} else {
			s.computedInPreviousFrame = true
		}
		if s.opts.Master {
			return s.computeVertexBlending(ctx)
		}
		return s.awaitVertexBlending(ctx)
	case s.computedInPreviousFrame:
		s.computedInPreviousFrame = false
		s.computedOnce = false
		s.deactivateVertexBlending(ctx)
	}
	return nil
}

func (s *Scene) computeVertexBlending(ctx context.Context) error {
	cams := s.allCameras()
	objs := s.Objects()
	ghosts := len(s.Ghosts())

	if len(cams) != 0 {
		for _, o := range objs {
			o.ResetTessellation()
		}
		for _, c := range cams {
			c.ComputeVertexVisibility(ctx)
			c.BlendingTessellateForCurrentCamera(ctx)
		}
		for _, o := range objs {
			o.ResetBlendingAttribute(ctx)
		}
		for _, c := range cams {
			c.ComputeVertexVisibility(ctx)
			c.ComputeBlendingContribution(ctx)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, o := range objs {
		o.SetVertexBlending(true)
	}
	s.log.Debug("vertex blending computed", "cameras", len(cams), "objects", len(objs))

	if ghosts == 0 || s.opts.Link == nil {
		return nil
	}
	for _, o := range objs {
		data, err := o.MarshalGeometry()
		if err != nil {
			return fmt.Errorf("scene: serialize %s: %w", o.Name(), err)
		}
		if err := s.opts.Link.Send(ctx, peer.TypeGeometry, o.Name(), data); err != nil {
			return fmt.Errorf("scene: send %s: %w", o.Name(), err)
		}
	}
	return s.opts.Link.Send(ctx, peer.TypeBlendingUpdated, "", nil)
}

// awaitVertexBlending waits for the master notification, polling every
// pollInterval, then enables the blended shading on the received geometry.
func (s *Scene) awaitVertexBlending(ctx context.Context) error {
	deadline := time.NewTimer(s.opts.PeerTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-s.updated:
			for _, o := range s.Objects() {
				o.SetVertexBlending(true)
				o.UseAlternateBuffers(true)
			}
			return nil
		case <-tick.C:
			s.log.Debug("waiting for the master blending")
		case <-deadline.C:
			s.log.Warn("no blending update from the master", "timeout", s.opts.PeerTimeout)
			return ErrPeerTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scene) deactivateVertexBlending(ctx context.Context) {
	objs := s.Objects()
	if s.opts.Master && len(s.Cameras()) != 0 {
		for _, o := range objs {
			o.ResetTessellation()
			o.ResetVisibility(ctx)
		}
	}
	for _, o := range objs {
		o.SetVertexBlending(false)
		o.UseAlternateBuffers(false)
	}
	s.log.Debug("vertex blending deactivated")
}

// BlendingUpdated records the master notification. It never blocks.
func (s *Scene) BlendingUpdated() {
	select {
	case s.updated <- struct{}{}:
	default:
	}
}

// calibrationState is the payload of calibration messages.
type calibrationState struct {
	Eye    [3]float64   `json:"eye"`
	Target [3]float64   `json:"target"`
	Up     [3]float64   `json:"up"`
	Fov    float64      `json:"fov"`
	Cx     float64      `json:"cx"`
	Cy     float64      `json:"cy"`
	Points [][6]float64 `json:"points"`
}

func stateOf(c *camera.Camera) calibrationState {
	eye, target, up := c.Pose()
	fov, cx, cy := c.Intrinsics()
	return calibrationState{
		Eye: eye, Target: target, Up: up,
		Fov: fov, Cx: cx, Cy: cy,
		Points: c.CalibrationPoints(),
	}
}

func (st calibrationState) apply(c *camera.Camera) {
	c.SetPose(st.Eye, st.Target, st.Up)
	c.SetFov(st.Fov)
	c.SetPrincipalPoint(st.Cx, st.Cy)
	c.SetCalibrationPoints(st.Points)
}
