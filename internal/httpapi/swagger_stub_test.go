package httpapi

import (
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMountSwagger_DoesNotPanic(t *testing.T) {
	r := chi.NewRouter()
	MountSwagger(r)
}
