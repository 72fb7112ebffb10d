package runner

import (
	"context"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/specialistvlad/modrun/internal/hmr"
	"github.com/specialistvlad/modrun/internal/modulegraph"
)

// handleHMRPayload applies one server payload to the runner.
func (r *Runner) handleHMRPayload(ctx context.Context, p hmr.Payload) error {
	client := r.hmrClient.Load()
	if client == nil {
		return nil
	}
	logger := client.Logger()

	switch p.Type {
	case hmr.TypeConnected:
		logger.Debug("HMR connected.")
		return client.Flush(ctx)

	case hmr.TypeUpdate:
		client.NotifyListeners(hmr.EventBeforeUpdate, p)
		updates := make([]hmr.Update, 0, len(p.Updates))
		for _, u := range p.Updates {
			if u.Type != hmr.UpdateJS {
				logger.Error("css hmr is not supported in runner mode.", "path", u.Path)
				continue
			}
			// Modules are keyed by their full path, without the /@id/ prefix.
			u.AcceptedPath = modulegraph.UnwrapID(u.AcceptedPath)
			u.Path = modulegraph.UnwrapID(u.Path)
			updates = append(updates, u)
		}
		err := client.QueueUpdates(ctx, updates)
		client.NotifyListeners(hmr.EventAfterUpdate, p)
		return err

	case hmr.TypeFullReload:
		var urls []string
		if p.TriggeredBy != "" {
			urls = r.modulesEntrypoints(r.graph.ModulesByFile(filepath.ToSlash(p.TriggeredBy)))
		} else {
			urls = r.allEntrypoints()
		}
		if len(urls) == 0 {
			return nil
		}
		logger.Debug("Program reload.", "entrypoints", urls)
		client.NotifyListeners(hmr.EventBeforeFullReload, p)
		r.graph.Clear()

		var result error
		for _, u := range urls {
			if _, err := r.Import(ctx, u); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result

	case hmr.TypePrune:
		client.NotifyListeners(hmr.EventBeforePrune, p)
		client.PrunePaths(p.Paths)

	case hmr.TypeCustom:
		client.NotifyListeners(p.Event, p.Data)

	case hmr.TypeError:
		client.NotifyListeners(hmr.EventError, p)
		var msg, stack string
		if p.Err != nil {
			msg, stack = p.Err.Message, p.Err.Stack
		}
		logger.Error("Internal Server Error", "message", msg, "stack", stack)

	case hmr.TypePing:

	default:
		logger.Warn("Unknown HMR payload.", "type", p.Type)
	}
	return nil
}

// modulesEntrypoints returns the urls of the root modules (those without
// importers) above nodes.
func (r *Runner) modulesEntrypoints(nodes []*modulegraph.Node) []string {
	var (
		urls    []string
		seenURL = make(map[string]struct{})
		visited = make(map[string]struct{})
		stack   = make([]string, 0, len(nodes))
	)
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, nodes[i].ID())
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}

		mod, ok := r.graph.ModuleByID(id)
		if !ok {
			continue
		}
		importers := mod.Importers()
		if len(importers) == 0 {
			if _, ok := seenURL[mod.URL()]; !ok {
				seenURL[mod.URL()] = struct{}{}
				urls = append(urls, mod.URL())
			}
			continue
		}
		for i := len(importers) - 1; i >= 0; i-- {
			stack = append(stack, importers[i])
		}
	}
	return urls
}

// allEntrypoints returns the urls of every module nothing imports.
func (r *Runner) allEntrypoints() []string {
	var urls []string
	seen := make(map[string]struct{})
	for _, mod := range r.graph.All() {
		if len(mod.Importers()) > 0 {
			continue
		}
		if _, ok := seen[mod.URL()]; ok {
			continue
		}
		seen[mod.URL()] = struct{}{}
		urls = append(urls, mod.URL())
	}
	return urls
}
