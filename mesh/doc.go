// Package mesh provides a half-edge polygonal mesh stored in index arenas.
// Vertices, faces and half-edges live in flat slices and reference each
// other by integer index, with InvalidIndex marking absent links. The
// representation is compact, trivially copyable and safe to rebuild
// incrementally, which the interface-mesh and defect-mesh stages rely on.
//
// The package also implements Taubin smoothing for closed surface meshes in
// periodic simulation cells.
package mesh
