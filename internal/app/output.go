package app

import (
	"encoding/json"
	"fmt"

	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/specialistvlad/modrun/internal/exports"
	"github.com/specialistvlad/modrun/internal/hcleval"
)

// result is one line of program output.
type result struct {
	Environment string                  `json:"environment"`
	URL         string                  `json:"url"`
	Exports     ctyjson.SimpleJSONValue `json:"exports"`
}

func newResult(env, url string, ns *exports.Namespace) (*result, error) {
	v, err := hcleval.NamespaceValue(ns)
	if err != nil {
		return nil, fmt.Errorf("converting exports of %s: %w", url, err)
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("exports of %s contain unknown values", url)
	}
	return &result{Environment: env, URL: url, Exports: ctyjson.SimpleJSONValue{Value: v}}, nil
}

// writeResults prints one JSON line per result.
func (a *App) writeResults(results []*result) error {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	enc := json.NewEncoder(a.outW)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
