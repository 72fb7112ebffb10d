package hcl

// fileRoot is the top level of a project file.
type fileRoot struct {
	Root         string         `hcl:"root,optional"`
	Entries      []string       `hcl:"entries,optional"`
	StallTimeout string         `hcl:"stall_timeout,optional"`
	SourceMaps   bool           `hcl:"source_maps,optional"`
	Externals    []*external    `hcl:"external,block"`
	Fetch        *fetchBlock    `hcl:"fetch,block"`
	HMR          *hmrBlock      `hcl:"hmr,block"`
	Environments []*environment `hcl:"environment,block"`
}

type external struct {
	Pattern string `hcl:"pattern,label"`
	Kind    string `hcl:"kind,optional"`
}

type fetchBlock struct {
	Backend    string   `hcl:"backend,optional"`
	BaseURL    string   `hcl:"base_url,optional"`
	Retries    int      `hcl:"retries,optional"`
	Timeout    string   `hcl:"timeout,optional"`
	Extensions []string `hcl:"extensions,optional"`
}

type hmrBlock struct {
	Transport string `hcl:"transport"`
	URL       string `hcl:"url,optional"`
	Namespace string `hcl:"namespace,optional"`
	Event     string `hcl:"event,optional"`
	Debounce  string `hcl:"debounce,optional"`
}

type environment struct {
	Name         string      `hcl:"name,label"`
	Root         string      `hcl:"root,optional"`
	Entries      []string    `hcl:"entries,optional"`
	StallTimeout string      `hcl:"stall_timeout,optional"`
	Externals    []*external `hcl:"external,block"`
	Fetch        *fetchBlock `hcl:"fetch,block"`
	HMR          *hmrBlock   `hcl:"hmr,block"`
}
