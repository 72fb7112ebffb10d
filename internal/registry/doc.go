// Package registry is the glue between the evaluator and the Go code that
// backs builtin modules.
//
// A builtin module registers two kinds of things: external loaders, which
// produce the namespace of a "builtin:" specifier when the runner externalizes
// it, and functions, which become callable from every module's expressions.
// Registration happens once at startup; names must be unique and a duplicate
// registration panics.
package registry
