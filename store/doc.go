// Package store defines the persistence records and ports used by the
// credential flows, along with the errors adapters must report.
//
// Adapters live in sub-packages: memory (process-local, for tests and demos)
// and postgres (gorm with embedded goose migrations).
package store
