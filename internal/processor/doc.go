// Package processor is the transaction processor runtime: one validator
// connection, a bounded worker pool, per-transaction state contexts, and the
// connect/register/serve/stop lifecycle around them.
//
// Ownership boundary:
// - Connection: single reader goroutine, serialized writes, reply routing
// - Dispatcher: process request decode, handler lookup, one reply per request
// - StateContext: get/set/delete state, events and receipt data for one transaction
// - Processor: epochs, registration, graceful shutdown, optional reconnect
package processor
