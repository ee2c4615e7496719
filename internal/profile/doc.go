// Package profile models the render composition: a [Render] is an ordered
// list of contiguous [Atom] segments, each holding [Layer] clips placed on the
// timeline with a trim window, an offset and a gain.
//
// Profiles are loaded from JSON. Times are [rational.Rational] values and may
// be written as "num/den" strings, decimals or integers. Normalize fills
// derived fields and Validate enforces the structural rules: atoms start at
// zero and are contiguous, every layer lies within its atom, and trim
// windows are non-empty.
package profile
