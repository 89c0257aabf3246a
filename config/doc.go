// Package config loads the YAML configuration document.
//
// Every package takes its own Config struct with defaults applied in its
// constructor; this package only maps one YAML file onto those structs.
// `${VAR}` references are expanded from the environment before parsing
// and missing variables are an error, `$$` escapes a literal dollar.
package config
