// Package repository provides a generic repository built on Bun with single
// and bulk CRUD operations, automatic transaction wrapping, caller-managed
// transaction scopes, and pagination.
//
// A Repository is immutable: WithAutoTransaction and WithTx return copies, so
// one instance can be shared across goroutines.
package repository
