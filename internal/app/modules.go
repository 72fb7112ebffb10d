package app

import (
	"github.com/specialistvlad/modrun/internal/registry"
	"github.com/specialistvlad/modrun/modules/env_vars"
	"github.com/specialistvlad/modrun/modules/print"
)

// coreModules is the definitive list of all builtin modules that are
// compiled into the modrun binary.
func coreModules(a *App) []registry.Module {
	return []registry.Module{
		&env_vars.Module{},
		&print.Module{Logger: a.logger},
	}
}
