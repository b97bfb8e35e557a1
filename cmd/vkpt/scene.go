// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/lumenforge/vkpt/internal/envmap"
	"github.com/lumenforge/vkpt/internal/transport"
	"github.com/lumenforge/vkpt/internal/view"
)

// sceneFile is the on-disk counterpart of transport.Scene plus the
// view.Camera needed to render it — there is no scene-description
// format elsewhere in this tree to reuse, so this mirrors rtconfig's
// own pattern of a YAML file unmarshalled straight into the runtime
// types it describes.
type sceneFile struct {
	Camera  cameraFile   `yaml:"camera"`
	Spheres []sphereFile `yaml:"spheres"`
}

type cameraFile struct {
	Eye     [3]float32 `yaml:"eye"`
	Center  [3]float32 `yaml:"center"`
	Up      [3]float32 `yaml:"up"`
	VFOVDeg float32    `yaml:"vfovDeg"`
	Near    float32    `yaml:"near"`
	Far     float32    `yaml:"far"`
}

type sphereFile struct {
	Center   [3]float32 `yaml:"center"`
	Radius   float32    `yaml:"radius"`
	Albedo   [3]float32 `yaml:"albedo"`
	Emission [3]float32 `yaml:"emission"`
	Specular bool       `yaml:"specular"`
}

// loadScene reads scenePath and, when envPath is non-empty, a TIFF
// equirectangular environment map, returning a transport.Scene ready
// for Renderer.SetReferenceScene and a view.Camera ready for
// Renderer.SetCamera.
func loadScene(scenePath, envPath string, aspect float32) (*transport.Scene, view.Camera, error) {
	data, err := os.ReadFile(scenePath)
	if err != nil {
		return nil, view.Camera{}, fmt.Errorf("reading %s: %w", scenePath, err)
	}
	var sf sceneFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, view.Camera{}, fmt.Errorf("parsing %s: %w", scenePath, err)
	}
	if len(sf.Spheres) == 0 {
		return nil, view.Camera{}, fmt.Errorf("%s: scene has no spheres", scenePath)
	}

	cam := view.Camera{
		Eye:    vec3(sf.Camera.Eye),
		Center: vec3(sf.Camera.Center),
		Up:     vec3(sf.Camera.Up),
		VFOV:   mgl32.DegToRad(sf.Camera.VFOVDeg),
		Aspect: aspect,
		Near:   sf.Camera.Near,
		Far:    sf.Camera.Far,
	}

	spheres := make([]*transport.Sphere, len(sf.Spheres))
	for i, s := range sf.Spheres {
		spheres[i] = &transport.Sphere{
			Center: vec3(s.Center),
			Radius: s.Radius,
			Mat: &transport.Material{
				Albedo:   vec3(s.Albedo),
				Emission: vec3(s.Emission),
				Specular: s.Specular,
			},
		}
	}

	var env *envmap.Environment
	if envPath != "" {
		env, err = loadEnvironment(envPath)
		if err != nil {
			return nil, view.Camera{}, fmt.Errorf("loading environment %s: %w", envPath, err)
		}
	}

	return &transport.Scene{Spheres: spheres, Environment: env}, cam, nil
}

// loadEnvironment reads an equirectangular TIFF image and builds its
// importance-sampling table, per internal/envmap's Load/Build pair.
func loadEnvironment(path string) (*envmap.Environment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := envmap.Load(f)
	if err != nil {
		return nil, err
	}
	return &envmap.Environment{Image: img, Table: envmap.Build(img)}, nil
}

func vec3(v [3]float32) mgl32.Vec3 { return mgl32.Vec3{v[0], v[1], v[2]} }
