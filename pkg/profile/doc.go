// Package profile installs packages into a profile without ever exposing a
// half-updated package set.
//
// A profile is a pointer to an immutable snapshot; a snapshot is a set of
// package roots, each contributing a footprint of relative paths. No two
// active roots in a snapshot may share a path.
//
// InstallPackages builds the new snapshot in a scratch profile, evicting any
// installed root whose footprint overlaps a new root, and repoints the real
// profile exactly once at the end. The package manager itself is abstracted
// as a PackageTool: NixEnv drives nix-env, LinkFarm keeps snapshots as plain
// directories of symlinks.
package profile
