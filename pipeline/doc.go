// Package pipeline caches the backend objects render passes draw with.
//
// ShaderCache compiles WGSL to SPIR-V and keeps the resulting shader
// modules in a bounded LRU. Cache keeps graphics pipelines per material
// pass and per render-target meta, so one material drawn into passes with
// different attachment formats gets one pipeline for each.
//
// Objects leaving either cache may still be referenced by frames in
// flight. They are retired to a drop sink and destroyed once those frames
// complete.
package pipeline
