// Package fileregistry loads YAML prompt manifests from an fs.FS (a directory,
// embed.FS, or fstest.MapFS) into a promptkit.Registry.
//
// Every .yaml and .yml file under the root is parsed; a file may hold several
// manifests separated by "---". A file named {stem}.{env}.yaml next to
// {stem}.yaml is an environment overlay: it replaces the prompts of the base file
// when the Loader's environment is env, and is ignored otherwise.
//
// Load can be called repeatedly; each call registers the current manifests and
// unregisters prompts this Loader registered earlier whose manifests are gone.
package fileregistry
