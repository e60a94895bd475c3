// Package cell models a three-dimensional simulation cell: a parallelepiped
// spanned by three cell vectors, with independent periodic-boundary flags per
// direction.
//
// The cell is the geometric frame shared by every stage of the dislocation
// analysis pipeline. It provides:
//
//   - conversion between absolute and reduced (fractional) coordinates,
//   - minimum-image wrapping of displacement vectors and points,
//   - detection of vectors that span more than half a periodic length,
//   - volume and face-to-face width queries used to validate ghost layers.
//
// A cell whose three vectors do not span a proper volume (a flat, "2D" cell)
// is rejected at construction with ErrCell2D; downstream stages never have to
// re-check this.
package cell
