// Package postgres implements store.Store on PostgreSQL through gorm.
//
// The schema ships with the binary as goose migrations; call RunMigrations
// once at startup before serving traffic. Token rows reference their user
// with ON DELETE CASCADE, so DeleteUser removes every session and one-time
// token the account owned.
package postgres
