// Package rational provides exact fractional time values.
//
// Every timestamp that crosses a component boundary in the render pipeline
// (timeline placement, trim windows, decoded presentation times, stream time
// bases) is carried as a [Rational] so that frame- and sample-accurate
// arithmetic never accumulates floating point drift.
//
// Values are always stored reduced to lowest terms with a positive
// denominator. Construction with a zero denominator fails with
// [ErrZeroDenominator]. Comparisons are computed by cross multiplication in
// 128-bit precision, so any two valid values compare correctly.
//
// Rationals marshal to JSON as "num/den" strings and accept strings
// ("3/2", "1.5", "7"), plain JSON numbers, or {"num":..,"den":..} objects
// when unmarshaling.
package rational
