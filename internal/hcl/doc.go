// Package hcl loads workflow definitions written in HCL into the
// format-agnostic config.Model.
//
// A workflow file may contain an optional `engine` block with defaults,
// any number of `artifact "name"` blocks and any number of `task "name"`
// blocks. Tasks refer to artifacts as artifact.<name>; commands may
// interpolate input.<role>, output.<role> and param.<name>.
package hcl
