// Package scheduler orders inference requests for a single expensive-to-load
// local model runtime.
//
// Requests enter a priority queue (interactive before background, FIFO within
// a tier) and are drained by one background worker goroutine that starts on
// the first Enqueue and exits after an idle timeout. The worker guarantees
// the right model is resident before each generation; the model cache holds
// at most one entry and all load/unload activity serializes behind a single
// mutex, which also gives concurrent loads of the same model the
// single-flight property. Callers get a Ticket back immediately and block
// only where they choose to, on Wait or on the streaming chunk channel. A
// caller that goes away cancels its Ticket, which aborts that request's load,
// generation and chunk delivery without taking the worker down with it.
package scheduler
