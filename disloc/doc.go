// Package disloc models the extracted dislocation network: line segments
// carrying a Burgers vector in a cluster frame, connected at junction nodes.
// Segments own their polyline sampling and per-point core size; nodes form
// circular junction rings so arbitrary-arity junctions need no separate
// junction object.
//
// The tracer merges segments as circuits meet; a merged segment forwards to
// its survivor through ReplacedBy, and consumers resolve forwarding chains
// with Resolved.
package disloc
