// Package file provides the TOML-backed settings store.
//
// Campaign settings live in a TOML file within the quarry config
// directory (~/.quarry/config.toml by default) and carry the tunables
// for agents, experiments and the campaign loop.
package file
