package project

import (
	"fmt"
	"log/slog"

	"projection-mapper/internal/camera"
	"projection-mapper/internal/compute"
	"projection-mapper/internal/geometry"
	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/raster"
	"projection-mapper/internal/scene"
	"projection-mapper/internal/texture"
)

// Deps are what Build needs besides the file.
type Deps struct {
	// Path of the project file, to resolve relative paths.
	Path     string
	Textures texture.Resolver
	// FrontOnly restricts blending contributions to faces facing the
	// camera.
	FrontOnly bool
	// Default blending of cameras not setting their own.
	BlendWidth     float64
	BlendPrecision float64
	Log            *slog.Logger
}

func (o Object) mesh(projectPath string) (*geometry.Mesh, error) {
	size := o.Size
	if size <= 0 {
		size = 1
	}
	switch {
	case o.Mesh != "":
		return geometry.LoadOBJ(Resolve(projectPath, o.Mesh))
	case o.Primitive == "plane":
		return geometry.Plane(size, max(o.Divisions, 1)), nil
	case o.Primitive == "cube":
		return geometry.Cube(size), nil
	}
	return nil, fmt.Errorf("project: object %s: unknown primitive %q", o.Name, o.Primitive)
}

// Build adds the objects and cameras of p to sc.
func Build(p *File, sc *scene.Scene, deps Deps) error {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	for _, o := range p.Objects {
		if err := buildObject(o, sc, deps, log); err != nil {
			return err
		}
	}
	for _, c := range p.Cameras {
		cam, err := sc.AddCamera(c.Name)
		if err != nil {
			return err
		}
		if err := configure(cam, c, sc, deps); err != nil {
			return err
		}
	}
	for _, c := range p.Ghosts {
		cam, err := sc.AddGhost(c.Name)
		if err != nil {
			return err
		}
		if err := configure(cam, c, sc, deps); err != nil {
			return err
		}
	}
	log.Info("project built", "name", p.Name, "objects", len(p.Objects),
		"cameras", len(p.Cameras), "ghosts", len(p.Ghosts))
	return nil
}

func buildObject(o Object, sc *scene.Scene, deps Deps, log *slog.Logger) error {
	if o.Name == "" {
		return fmt.Errorf("project: object without a name")
	}
	m, err := o.mesh(deps.Path)
	if err != nil {
		return err
	}
	obj, err := sc.AddObject(o.Name, m)
	if err != nil {
		return err
	}
	obj.SetPosition(o.Position)
	obj.SetRotation(o.Rotation)
	if o.Scale != ([3]float64{}) {
		obj.SetScale(o.Scale)
	}
	if o.Color != ([4]float64{}) {
		obj.SetColor(o.Color)
	}
	if o.Fill != "" {
		f, err := raster.ParseFill(o.Fill)
		if err != nil {
			return fmt.Errorf("project: object %s: %w", o.Name, err)
		}
		obj.SetFill(f)
	}
	if o.Texture != "" && deps.Textures != nil {
		if img := deps.Textures.Resolve(o.Texture); img != nil {
			obj.SetTexture(o.Texture, img)
		} else {
			log.Warn("texture not found", "object", o.Name, "texture", o.Texture)
		}
	}
	if deps.FrontOnly {
		obj.SetSideness(compute.FrontOnly)
	}
	return nil
}

func configure(cam *camera.Camera, c Camera, sc *scene.Scene, deps Deps) error {
	if c.Size[0] > 0 && c.Size[1] > 0 {
		cam.SetSize(c.Size[0], c.Size[1])
	}
	if c.Fov > 0 {
		cam.SetFov(c.Fov)
	}
	if c.PrincipalPoint != ([2]float64{}) {
		cam.SetPrincipalPoint(c.PrincipalPoint[0], c.PrincipalPoint[1])
	}
	if c.Eye != ([3]float64{}) {
		up := mathutil.Vec3(c.Up)
		if up == (mathutil.Vec3{}) {
			up = mathutil.Vec3{0, 0, 1}
		}
		cam.SetPose(c.Eye, c.Target, up)
	}
	width, precision := cam.Blending()
	if deps.BlendWidth > 0 {
		width = deps.BlendWidth
	}
	if deps.BlendPrecision > 0 {
		precision = deps.BlendPrecision
	}
	if c.BlendWidth > 0 {
		width = c.BlendWidth
	}
	if c.BlendPrecision > 0 {
		precision = c.BlendPrecision
	}
	cam.SetBlending(width, precision)

	attrs := cam.Attributes()
	if err := attrs.Lock("fov", c.LockFov); err != nil {
		return err
	}
	if err := attrs.Lock("principalPoint", c.LockPrincipalPoint); err != nil {
		return err
	}
	for _, name := range c.Objects {
		if err := sc.Link(c.Name, name); err != nil {
			return fmt.Errorf("project: camera %s: %w", c.Name, err)
		}
	}
	if len(c.CalibrationPoints) > 0 {
		cam.SetCalibrationPoints(c.CalibrationPoints)
	}
	return nil
}

// Capture writes the current parameters and calibration points of the
// cameras of sc back into p. Cameras missing from p are appended.
func Capture(p *File, sc *scene.Scene) {
	capture := func(cam *camera.Camera, list *[]Camera) {
		entry, ok := p.Camera(cam.Name())
		if !ok {
			*list = append(*list, Camera{Name: cam.Name(), Objects: cam.Links()})
			entry = &(*list)[len(*list)-1]
		}
		eye, target, up := cam.Pose()
		fov, cx, cy := cam.Intrinsics()
		w, h := cam.Size()
		width, precision := cam.Blending()
		entry.Eye, entry.Target, entry.Up = eye, target, up
		entry.Fov = fov
		entry.PrincipalPoint = [2]float64{cx, cy}
		entry.Size = [2]int{w, h}
		entry.BlendWidth, entry.BlendPrecision = width, precision
		entry.CalibrationPoints = nil
		if points := cam.CalibrationPoints(); len(points) > 0 {
			entry.CalibrationPoints = points
		}
	}
	for _, cam := range sc.Cameras() {
		capture(cam, &p.Cameras)
	}
	for _, cam := range sc.Ghosts() {
		capture(cam, &p.Ghosts)
	}
}
