// Package ir provides the value model and action-record types shared by
// every other package in scullery.
//
// This package contains type definitions and canonical serialization only.
// All other internal packages import ir; ir imports nothing internal. This
// keeps the value model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Values are a sealed set: null, string, int, float, bool, array, object
//   - All JSON tags use snake_case
//   - Logical clocks (seq) only, never wall-clock timestamps, on records
//     that participate in content-addressed identity
package ir
