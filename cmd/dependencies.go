package cmd

import (
	"github.com/graceinfra/shipyard/internal/actions"
	"github.com/graceinfra/shipyard/internal/resolver"
)

type AppDependencies struct {
	Registry *actions.Registry
	Resolver *resolver.Resolver
}

var appDependencies *AppDependencies

// SetDependencies allows for injecting application dependencies
func SetDependencies(deps *AppDependencies) {
	if deps == nil || deps.Registry == nil {
		panic("critical error: attempted to set nil dependencies or registry")
	}
	appDependencies = deps
}

// GetDependencies returns the injected dependencies, or the built-in actions
// and fetchers when none were set.
func GetDependencies() *AppDependencies {
	if appDependencies == nil {
		appDependencies = &AppDependencies{
			Registry: actions.DefaultRegistry(),
			Resolver: resolver.New(),
		}
	}
	return appDependencies
}
