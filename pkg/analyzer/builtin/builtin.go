// Package builtin lists the analyzer modules shipped with auger.
package builtin

import (
	"github.com/panbanda/auger/pkg/analyzer"
	"github.com/panbanda/auger/pkg/analyzer/assembly"
	"github.com/panbanda/auger/pkg/analyzer/code"
	"github.com/panbanda/auger/pkg/analyzer/settings"
)

// Registry returns a registry of every built-in module, in run order.
func Registry() *analyzer.Registry {
	return analyzer.NewRegistry(
		code.New,
		assembly.New,
		settings.New,
	)
}
