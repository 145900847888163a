//go:build !llama

package llamacpp

import (
	"context"

	"inferd/internal/scheduler"
	"inferd/pkg/types"
)

// llamaBuilt indicates this binary was compiled without real llama support.
var llamaBuilt = false

var _ scheduler.Engine = (*Adapter)(nil)

func (a *Adapter) Load(ctx context.Context, mdl types.Model) (scheduler.ModelHandle, error) {
	return nil, scheduler.ErrDependencyUnavailable("in-process llama requires a build with -tags=llama")
}

func (a *Adapter) Unload(h scheduler.ModelHandle) error { return nil }

func (a *Adapter) GenerateBatch(ctx context.Context, h scheduler.ModelHandle, req types.ChatRequest) (*types.ChatResult, error) {
	return nil, scheduler.ErrDependencyUnavailable("in-process llama requires a build with -tags=llama")
}

func (a *Adapter) GenerateStream(ctx context.Context, h scheduler.ModelHandle, req types.ChatRequest) (scheduler.Stream, error) {
	return nil, scheduler.ErrDependencyUnavailable("in-process llama requires a build with -tags=llama")
}
