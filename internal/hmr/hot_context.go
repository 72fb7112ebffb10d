package hmr

import (
	"context"

	"github.com/specialistvlad/modrun/internal/exports"
)

// HotContext is the hot-update handle of one executing module.
type HotContext struct {
	client    *Client
	ownerPath string
}

// OwnerPath returns the url of the module that owns the context.
func (h *HotContext) OwnerPath() string { return h.ownerPath }

// Data returns the scratch space shared by successive executions of the module.
func (h *HotContext) Data() Data {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	d, ok := h.client.dataMap[h.ownerPath]
	if !ok {
		d = Data{}
		h.client.dataMap[h.ownerPath] = d
	}
	return d
}

// Accept marks the module as self-accepting. cb, if not nil, receives the
// re-executed namespace.
func (h *HotContext) Accept(cb func(mod *exports.Namespace)) {
	h.AcceptDeps([]string{h.ownerPath}, func(mods []*exports.Namespace) {
		if cb != nil {
			cb(mods[0])
		}
	})
}

// AcceptDep accepts updates of a single dependency.
func (h *HotContext) AcceptDep(dep string, cb func(mod *exports.Namespace)) {
	h.AcceptDeps([]string{dep}, func(mods []*exports.Namespace) {
		if cb != nil {
			cb(mods[0])
		}
	})
}

// AcceptDeps accepts updates of deps. cb receives one namespace per dep, nil
// for deps that were not part of the update.
func (h *HotContext) AcceptDeps(deps []string, cb func(mods []*exports.Namespace)) {
	if cb == nil {
		cb = func([]*exports.Namespace) {}
	}
	h.client.addAcceptCallback(h.ownerPath, acceptCallback{deps: append([]string(nil), deps...), fn: cb})
}

// Dispose registers cleanup run before the module is re-executed or pruned.
func (h *HotContext) Dispose(cb func(data Data)) {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	h.client.disposeMap[h.ownerPath] = cb
}

// Prune registers cleanup run when the module is no longer imported.
func (h *HotContext) Prune(cb func(data Data)) {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	h.client.pruneMap[h.ownerPath] = cb
}

// Decline is accepted for compatibility and does nothing.
func (h *HotContext) Decline() {}

// Invalidate asks the server to propagate the update past this module.
func (h *HotContext) Invalidate(ctx context.Context, message string) error {
	data := map[string]any{"path": h.ownerPath, "message": message, "firstInvalidatedBy": h.ownerPath}
	h.client.NotifyListeners(EventInvalidate, data)
	if message != "" {
		h.client.logger.Debug("Invalidate.", "path", h.ownerPath, "message", message)
	} else {
		h.client.logger.Debug("Invalidate.", "path", h.ownerPath)
	}
	return h.Send(ctx, EventInvalidate, data)
}

// On registers a listener for a custom event. The returned function removes it.
func (h *HotContext) On(event string, cb func(data any)) (off func()) {
	l := &listener{owner: h.ownerPath, fn: cb}
	h.client.addListener(event, l)
	return func() { h.client.removeListener(event, l) }
}

// Send emits a custom event to the server.
func (h *HotContext) Send(ctx context.Context, event string, data any) error {
	return h.client.Send(ctx, Payload{Type: TypeCustom, Event: event, Data: data})
}
