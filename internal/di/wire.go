//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"codegraph-backend/internal/config"
)

// InitializeContainer is the wire injector declaration. The phased
// constructor in container.go is the production path; this exists so the
// wire tool can regenerate the graph if the manual wiring is ever split
// into providers.
func InitializeContainer(cfg *config.Config) (*Container, error) {
	panic(wire.Build(NewContainer))
}
