// Package mysql persists proof jobs in MySQL. It owns the connection pool
// settings, the embedded schema migrations and the job.Store implementation.
package mysql
