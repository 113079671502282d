// Package kvstore holds disk-backed surrogate stores for groups whose
// dimension tables do not fit in memory, and the factory that picks one
// from configuration.
package kvstore
