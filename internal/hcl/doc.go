// Package hcl provides the HCL implementation of config.Loader. It parses a
// project file and translates its blocks into the format-agnostic
// config.Model.
package hcl
