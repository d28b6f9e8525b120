// Package config loads planner settings from files and the environment and
// validates them.
//
// # Sources
//
// Settings are layered, lowest precedence first:
//
//   - the planner defaults
//   - a settings file, chosen by extension: .cue, .yaml/.yml, .json or .star
//   - NIX_INSTALLER_* environment variables (ApplyEnv)
//   - command line flags, applied by the caller
//
// Every file format produces the same flat map of setting names to values.
// CUE files may use constraints and references; Starlark files are scripts
// whose public globals become settings and which see the current values as
// the predeclared dict `defaults`.
//
// # Validation
//
// A map can be checked against a named CUE schema in a SchemaRegistry
// before it is decoded, which rejects unknown keys and ill-typed values with
// file positions. Decoded structs are then checked with Validate, which
// evaluates `validate` struct tags and reports fields by their JSON name.
//
// # Usage Example
//
//	loader := config.NewLoader()
//	if err := loader.Schemas().RegisterSchema("linux", planner.SettingsSchema); err != nil {
//	    return err
//	}
//	if err := loader.Load(ctx, "settings.cue", "linux", p); err != nil {
//	    return err
//	}
//	if _, err := config.ApplyEnv(p, config.EnvPrefix, os.LookupEnv); err != nil {
//	    return err
//	}
//	if err := config.Validate(p); err != nil {
//	    return err
//	}
package config
