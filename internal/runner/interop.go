package runner

import (
	"github.com/specialistvlad/modrun/internal/exports"
	"github.com/specialistvlad/modrun/internal/fetch"
)

// processImport checks a static import of an externalized module against the
// names the importer reads.
func processImport(ns *exports.Namespace, meta *fetch.Result, md *ImportMetadata) (*exports.Namespace, error) {
	if !meta.IsExternal() {
		return ns, nil
	}
	if meta.Kind != fetch.KindModule && meta.Kind != fetch.KindCommonJS {
		return ns, nil
	}
	if md == nil || md.IsDynamicImport {
		return ns, nil
	}

	var missing []string
	for _, name := range md.ImportedNames {
		if !ns.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingExportError{Specifier: meta.URL, Kind: meta.Kind, Missing: missing}
	}
	return ns, nil
}
