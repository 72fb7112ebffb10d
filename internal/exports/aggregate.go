package exports

import "reflect"

// Pending is implemented by values that settle later, such as futures. They
// are never star-exported.
type Pending interface {
	Done() <-chan struct{}
}

// ExportAll forwards every binding of source into target as a live getter,
// except DefaultKey and InteropKey. Sources that are not key/value containers
// (nil, primitives, slices, arrays, channels, pending values) and target
// itself are ignored. Keys that target refuses to redefine keep their current
// binding.
func ExportAll(target *Namespace, source any) {
	if target == nil || source == nil {
		return
	}

	switch src := source.(type) {
	case *Namespace:
		if src == target {
			return
		}
		for _, key := range src.Keys() {
			if skipReexport(key) {
				continue
			}
			_ = target.Define(key, func() any {
				v, _ := src.Get(key)
				return v
			}, true)
		}
		return
	case Pending:
		return
	}

	rv := reflect.ValueOf(source)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return
	}
	keyType := rv.Type().Key()
	for _, k := range rv.MapKeys() {
		key := k.String()
		if skipReexport(key) {
			continue
		}
		mapKey := reflect.ValueOf(key).Convert(keyType)
		_ = target.Define(key, func() any {
			v := rv.MapIndex(mapKey)
			if !v.IsValid() {
				return nil
			}
			return v.Interface()
		}, true)
	}
}

func skipReexport(key string) bool {
	return key == DefaultKey || key == InteropKey
}
