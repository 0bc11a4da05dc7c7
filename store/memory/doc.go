// Package memory is an in-process store.Store for tests, demos and
// single-node development.
package memory
