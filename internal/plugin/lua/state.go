// Package lua constructs plugins from Lua scripts. A script is a plugin when
// it defines a global process_event(payload) function; load(settings) and
// unload() are optional.
package lua

import (
	"context"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Global function names a script may define.
const (
	FuncProcessEvent = "process_event"
	FuncLoad         = "load"
	FuncUnload       = "unload"
)

// removedGlobals are base functions that would let a script load code from
// disk or bypass the module whitelist.
var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

// newState creates a Lua state with only the base, table, string and math
// libraries opened.
func newState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	libs := []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name))
		if err != nil {
			L.Close()
			return nil, fmt.Errorf("opening %s library: %w", lib.name, err)
		}
	}

	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L, nil
}

// function returns the named global when it is a function.
func function(L *lua.LState, name string) (*lua.LFunction, bool) {
	fn, ok := L.GetGlobal(name).(*lua.LFunction)
	return fn, ok
}

// call invokes fn with args under ctx and returns its results. Lua runtime
// errors and panics inside the VM are returned as errors.
func call(ctx context.Context, L *lua.LState, fn *lua.LFunction, args ...lua.LValue) (results []lua.LValue, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	if ctx != nil {
		L.SetContext(ctx)
		defer L.RemoveContext()
	}

	top := L.GetTop()
	if err := L.CallByParam(lua.P{Fn: fn, NRet: lua.MultRet, Protect: true}, args...); err != nil {
		return nil, err
	}

	n := L.GetTop() - top
	results = make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(top + i + 1)
	}
	L.Pop(n)
	return results, nil
}

// failure interprets a script function's return values. A script reports a
// failure by returning false or nil followed by a message.
func failure(results []lua.LValue) error {
	if len(results) == 0 {
		return nil
	}
	first := results[0]
	if first != lua.LFalse && !(first == lua.LNil && len(results) > 1) {
		return nil
	}
	if len(results) > 1 && results[1] != lua.LNil {
		return errors.New(results[1].String())
	}
	if first == lua.LFalse {
		return errors.New("script returned false")
	}
	return nil
}
