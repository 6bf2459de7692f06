package requist

import "reflect"

// CloneMode controls what callers receive on a cache hit.
type CloneMode string

const (
	// CloneNone returns the cached reference itself. Cheapest; the caller
	// must not mutate the result.
	CloneNone CloneMode = "none"
	// CloneShallow copies the top level of maps, slices and structs.
	CloneShallow CloneMode = "shallow"
	// CloneDeep returns a structural deep copy so callers can never mutate
	// cached state.
	CloneDeep CloneMode = "deep"
)

func (m CloneMode) supported() bool {
	switch m {
	case "", CloneNone, CloneShallow, CloneDeep:
		return true
	default:
		return false
	}
}

// cloneValue applies the clone policy to a cached value. Unknown modes have
// been rejected by validation before this point.
func cloneValue(v any, mode CloneMode) any {
	switch mode {
	case CloneShallow:
		return shallowClone(v)
	case CloneDeep:
		return deepClone(v)
	default:
		return v
	}
}

func shallowClone(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface()
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	case reflect.Ptr:
		if rv.IsNil() {
			return v
		}
		out := reflect.New(rv.Type().Elem())
		out.Elem().Set(rv.Elem())
		return out.Interface()
	default:
		// Value types copy on assignment already.
		return v
	}
}

func deepClone(v any) any {
	if v == nil {
		return nil
	}
	seen := make(map[uintptr]reflect.Value)
	return deepCloneValue(reflect.ValueOf(v), seen).Interface()
}

func deepCloneValue(rv reflect.Value, seen map[uintptr]reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		inner := deepCloneValue(rv.Elem(), seen)
		out := reflect.New(rv.Type()).Elem()
		out.Set(inner)
		return out

	case reflect.Ptr:
		if rv.IsNil() {
			return rv
		}
		if cached, ok := seen[rv.Pointer()]; ok {
			return cached
		}
		out := reflect.New(rv.Type().Elem())
		seen[rv.Pointer()] = out
		out.Elem().Set(deepCloneValue(rv.Elem(), seen))
		return out

	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		if cached, ok := seen[rv.Pointer()]; ok {
			return cached
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		seen[rv.Pointer()] = out
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(deepCloneValue(iter.Key(), seen), deepCloneValue(iter.Value(), seen))
		}
		return out

	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		if cached, ok := seen[rv.Pointer()]; ok {
			return cached
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		seen[rv.Pointer()] = out
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(deepCloneValue(rv.Index(i), seen))
		}
		return out

	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(deepCloneValue(rv.Index(i), seen))
		}
		return out

	case reflect.Struct:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.NumField(); i++ {
			if !rv.Type().Field(i).IsExported() {
				continue
			}
			out.Field(i).Set(deepCloneValue(rv.Field(i), seen))
		}
		return out

	default:
		return rv
	}
}
