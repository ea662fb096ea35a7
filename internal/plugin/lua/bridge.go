package lua

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// toLua converts a JSON-compatible Go value into a Lua value.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []any:
		t := L.CreateTable(len(val), 0)
		for i, item := range val {
			t.RawSetInt(i+1, toLua(L, item))
		}
		return t
	case []string:
		t := L.CreateTable(len(val), 0)
		for i, item := range val {
			t.RawSetInt(i+1, lua.LString(item))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(val))
		for k, item := range val {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	case map[string]string:
		t := L.CreateTable(0, len(val))
		for k, item := range val {
			t.RawSetString(k, lua.LString(item))
		}
		return t
	case lua.LValue:
		return val
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		t := L.CreateTable(0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSetString(iter.Key().String(), toLua(L, iter.Value().Interface()))
		}
		return t
	case reflect.Slice, reflect.Array:
		t := L.CreateTable(rv.Len(), 0)
		for i := 0; i < rv.Len(); i++ {
			t.RawSetInt(i+1, toLua(L, rv.Index(i).Interface()))
		}
		return t
	}
	return lua.LString(fmt.Sprint(v))
}

// toGo converts a Lua value into a Go value. Tables with keys 1..n become
// slices, other tables become maps. Functions and cycles become nil.
func toGo(lv lua.LValue) any {
	return toGoVisited(lv, map[*lua.LTable]bool{})
}

func toGoVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return tableToGo(v, visited)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := t.MaxN()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && n == count {
		out := make([]any, n)
		for i := 1; i <= n; i++ {
			out[i-1] = toGoVisited(t.RawGetInt(i), visited)
		}
		return out
	}

	out := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		out[k.String()] = toGoVisited(v, visited)
	})
	return out
}

// fieldsOf flattens a Lua table into sorted key/value pairs for logging.
func fieldsOf(t *lua.LTable) ([]string, map[string]any) {
	m, ok := tableToGo(t, map[*lua.LTable]bool{t: true}).(map[string]any)
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, m
}
