package sandbox

import "github.com/ploston/dael/internal/workflow"

// moduleSets maps each package profile to the modules its static import
// gate accepts, honoring spec.md §6's literal, pinned sets. The sandbox
// is a goja (JS) runtime rather than a Python one, so these names are
// host-bridged module identifiers, not real Python packages — the gate
// only ever checks string membership in `import(...)` calls, never loads
// an actual module by this name.
var moduleSets = map[workflow.PackageProfile][]string{
	workflow.ProfileMinimal: {"json", "re", "datetime", "math"},
	workflow.ProfileStandard: {
		"json", "re", "datetime", "math",
		"random", "typing", "collections", "itertools", "functools",
		"hashlib", "uuid", "base64", "urllib.parse",
	},
	// numpy/pandas are deliberately absent: spec.md §6 adds them to
	// data_science "only if the host provides them", and this goja host
	// does not — referencing either always fails CODE_SECURITY via
	// advisoryOnlyModules below instead of silently succeeding.
	workflow.ProfileDataScience: {
		"json", "re", "datetime", "math",
		"random", "typing", "collections", "itertools", "functools",
		"hashlib", "uuid", "base64", "urllib.parse",
	},
}

// advisoryOnlyModules names modules the profile enumeration historically
// implies (the original Python package names) but that have no
// Go-embeddable equivalent shipped by default. Referencing one always
// fails CODE_SECURITY with a suggestion explaining why, rather than
// silently succeeding or silently being absent from the allowlist.
var advisoryOnlyModules = map[string]bool{
	"numpy":  true,
	"pandas": true,
}

// EffectiveAllowlist computes the module set a workflow's sandbox may
// import: its package profile's modules union packages.additional.
func EffectiveAllowlist(pkg *workflow.Packages) map[string]bool {
	profile := workflow.ProfileMinimal
	var additional []string
	if pkg != nil {
		if pkg.Profile != "" {
			profile = pkg.Profile
		}
		additional = pkg.Additional
	}

	allowed := make(map[string]bool)
	for _, m := range moduleSets[profile] {
		allowed[m] = true
	}
	for _, m := range additional {
		allowed[m] = true
	}
	return allowed
}
