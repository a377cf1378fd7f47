// Package graph defines the immutable stage graph walked by the engine
//
// A Graph is compiled once by a Builder, which rejects unknown stages,
// stages without routing, unreachable stages, and stages that cannot reach
// an exit. Routing functions are pure and return a Target: either another
// stage or End
package graph
