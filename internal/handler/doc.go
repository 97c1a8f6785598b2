// Package handler defines the transaction family contract and the registry
// that maps (family, version) to a handler.
package handler
