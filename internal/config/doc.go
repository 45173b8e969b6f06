// Package config defines the format-agnostic workflow definition model and
// the Loader interface that format-specific packages, such as hcl,
// implement.
//
// A Model names artifacts and tasks by their declared names; turning names
// into artifact and task objects happens in the app package.
package config
