// Package ir provides the plain-data value model used for form snapshots.
//
// A snapshot is an IRObject: a tree of strings, integers, booleans, nulls,
// arrays and objects. Two snapshots are equal exactly when their canonical
// JSON encodings are byte-identical, which makes equality independent of
// map iteration order and of Go pointer identity.
//
// Key design constraints:
//   - NO float types anywhere - money and quantities are int64 minor units
//   - Null is allowed (a field that has not loaded yet is null, not absent)
//   - All JSON tags use snake_case
//
// ir imports nothing internal; every other package may import it.
package ir
