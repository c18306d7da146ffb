package function

import (
	"net/http"
	"sort"
	"sync"
)

var registry = struct {
	sync.RWMutex
	funcs map[string]*Function
}{funcs: map[string]*Function{}}

// Register resolves fn and stores it under name for later lookup by target
// name.
func Register(name string, sig SignatureType, fn any) error {
	if name == "" {
		return configErr("function", "empty function name")
	}
	f, err := New(name, sig, fn)
	if err != nil {
		return err
	}

	registry.Lock()
	defer registry.Unlock()
	if _, ok := registry.funcs[name]; ok {
		return configErr("function", "%q registered twice", name)
	}
	registry.funcs[name] = f
	return nil
}

func mustRegister(name string, sig SignatureType, fn any) {
	if err := Register(name, sig, fn); err != nil {
		panic(err)
	}
}

// HTTP registers an http function. It panics on a bad handler, so it is meant
// for init functions.
func HTTP(name string, fn func(w http.ResponseWriter, r *http.Request)) {
	mustRegister(name, SignatureHTTP, fn)
}

// Event registers an event function; see the package doc for accepted shapes.
func Event(name string, fn any) { mustRegister(name, SignatureEvent, fn) }

// CloudEvent registers a cloudevent function.
func CloudEvent(name string, fn any) { mustRegister(name, SignatureCloudEvent, fn) }

func Lookup(name string) (*Function, bool) {
	registry.RLock()
	defer registry.RUnlock()
	f, ok := registry.funcs[name]
	return f, ok
}

// Names lists registered functions in sorted order.
func Names() []string {
	registry.RLock()
	defer registry.RUnlock()
	names := make([]string, 0, len(registry.funcs))
	for name := range registry.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve finds the function for target and checks it was registered with
// sig. An empty sig accepts whatever was registered.
func Resolve(target string, sig SignatureType) (*Function, error) {
	f, ok := Lookup(target)
	if !ok {
		return nil, configErr("target", "no function registered as %q (have %v)", target, Names())
	}
	if sig != "" && f.Signature != sig {
		return nil, configErr("signature type", "%q is a %s function, not %s", target, f.Signature, sig)
	}
	return f, nil
}
