// Package llamacpp implements the scheduler's Engine with the in-process
// go-llama.cpp binding. Real inference requires building with -tags=llama and
// CGO; default builds compile a stub that reports the dependency as
// unavailable, keeping CI CGO-free.
package llamacpp

// Adapter holds global settings applied to every loaded model.
type Adapter struct {
	ctxSize int
	threads int
}

// New constructs an in-process adapter.
func New(ctxSize, threads int) *Adapter {
	return &Adapter{ctxSize: ctxSize, threads: threads}
}

// Built reports whether real llama support was compiled in.
func Built() bool { return llamaBuilt }
