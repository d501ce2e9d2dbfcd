// Package pipeline caches native pipelines by a normalized state key.
//
// A request names a Layout, the fixed-function RenderState, the vertex
// input, the DynamicState mask and an optional shader debug mode. The cache
// normalizes the state so that fields which cannot affect rendering do not
// split the cache, validates it against the device features, and returns
// the shared Instance for the resulting Key.
package pipeline
