package geometry

import (
	"sync"
)

// Annexe is the per-vertex blending state written by the compute phases.
type Annexe struct {
	Visible bool    // seen by the camera of the current pass
	Blend   float64 // summed contribution of every camera
	Count   int     // number of cameras that contributed
}

// Geometry owns an original mesh and an optional alternate (tessellated)
// mesh. The annexe always matches the vertex count of the active mesh.
type Geometry struct {
	mu           sync.RWMutex
	original     *Mesh
	alternate    *Mesh
	useAlternate bool
	annexe       []Annexe
	version      uint64
}

// New wraps m; it does not copy.
func New(m *Mesh) *Geometry {
	return &Geometry{original: m, annexe: make([]Annexe, m.VertexCount())}
}

// Original returns the undistorted mesh.
func (g *Geometry) Original() *Mesh {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.original
}

// Active returns the mesh currently drawn.
func (g *Geometry) Active() *Mesh {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active()
}

func (g *Geometry) active() *Mesh {
	if g.useAlternate && g.alternate != nil {
		return g.alternate
	}
	return g.original
}

func (g *Geometry) VertexCount() int {
	return g.Active().VertexCount()
}

// SetAlternate installs a tessellated mesh. It becomes active only after
// UseAlternate(true).
func (g *Geometry) SetAlternate(m *Mesh) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.alternate = m
	g.bump()
}

// UseAlternate switches between the alternate and the original buffers.
// The annexe is resized, and cleared when the vertex count changes.
func (g *Geometry) UseAlternate(use bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.useAlternate == use {
		return
	}
	g.useAlternate = use
	g.bump()
}

// UsingAlternate reports whether the alternate mesh is active.
func (g *Geometry) UsingAlternate() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.useAlternate && g.alternate != nil
}

// ResetAlternate restores the original buffers and drops the alternate mesh.
func (g *Geometry) ResetAlternate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.useAlternate = false
	g.alternate = nil
	g.bump()
}

func (g *Geometry) bump() {
	g.version++
	if n := g.active().VertexCount(); len(g.annexe) != n {
		g.annexe = make([]Annexe, n)
	}
}

// Version increases whenever the active buffers change.
func (g *Geometry) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// Update runs fn with exclusive access to the active mesh and its annexe.
func (g *Geometry) Update(fn func(m *Mesh, annexe []Annexe)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.active(), g.annexe)
}

// View runs fn with shared access to the active mesh and its annexe.
func (g *Geometry) View(fn func(m *Mesh, annexe []Annexe)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(g.active(), g.annexe)
}

// Annexe returns a copy of the per-vertex state.
func (g *Geometry) Annexe() []Annexe {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Annexe(nil), g.annexe...)
}

// ResetAnnexe clears visibility and blending.
func (g *Geometry) ResetAnnexe() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.annexe)
}
