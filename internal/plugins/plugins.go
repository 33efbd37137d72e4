// Package plugins installs the built-in test framework plug-ins into a hook
// registry by name.
package plugins

import (
	"fmt"
	"sort"

	"github.com/randomizedcoder/go-tork/internal/hooks"
	"github.com/randomizedcoder/go-tork/internal/plugins/cucumber"
)

var builtin = map[string]func(*hooks.Registry){
	cucumber.Name: cucumber.Install,
}

// Install registers the hooks of each named plug-in, in order.
func Install(names []string, reg *hooks.Registry) error {
	for _, name := range names {
		install, ok := builtin[name]
		if !ok {
			return fmt.Errorf("unknown plugin %q (available: %v)", name, Available())
		}
		install(reg)
	}
	return nil
}

// Available lists the built-in plug-in names.
func Available() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
