package hcleval

import "github.com/hashicorp/hcl/v2"

type moduleFile struct {
	Imports   []*importBlock    `hcl:"import,block"`
	ExportAll []*exportAllBlock `hcl:"export_all,block"`
	Exports   []*exportBlock    `hcl:"export,block"`
	Hot       *hotBlock         `hcl:"hot,block"`
}

type importBlock struct {
	Alias   string   `hcl:"alias,label"`
	From    string   `hcl:"from"`
	Names   []string `hcl:"names,optional"`
	Dynamic bool     `hcl:"dynamic,optional"`
}

type exportAllBlock struct {
	From string `hcl:"from"`
}

type exportBlock struct {
	Name  string         `hcl:"name,label"`
	Value hcl.Expression `hcl:"value"`
}

type hotBlock struct {
	Accept bool `hcl:"accept,optional"`
}
