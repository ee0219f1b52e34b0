// Package environ builds the environment handed to a broker instance.
package environ

import (
	"runtime"
	"sort"
	"strings"
)

// DefaultStrippedPrefixes are the Erlang runtime and RabbitMQ variable
// families. Anything matching them on the developer machine would otherwise
// leak into the isolated instance.
var DefaultStrippedPrefixes = []string{"RABBITMQ_", "ERLANG_", "ERL_"}

// FromList converts os.Environ style "KEY=value" entries into a map.
// Entries without '=' are ignored, and so are the "=C:=C:\..." drive
// entries Windows keeps for cmd.exe. Later duplicates win.
func FromList(list []string) map[string]string {
	env := make(map[string]string, len(list))
	for _, entry := range list {
		i := strings.IndexByte(entry, '=')
		if i <= 0 {
			continue
		}
		env[entry[:i]] = entry[i+1:]
	}
	return env
}

// ToList converts env into "KEY=value" entries sorted by key.
func ToList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}

// Sanitize returns a new map holding every inherited variable whose name
// does not start with one of prefixes, plus overrides. inherited is never
// modified. Applying Sanitize to its own result with the same arguments
// yields the same map.
func Sanitize(inherited map[string]string, prefixes []string, overrides map[string]string) map[string]string {
	return sanitize(inherited, prefixes, overrides, runtime.GOOS == "windows")
}

func sanitize(inherited map[string]string, prefixes []string, overrides map[string]string, foldCase bool) map[string]string {
	env := make(map[string]string, len(inherited)+len(overrides))
	for k, v := range inherited {
		if hasAnyPrefix(k, prefixes, foldCase) {
			continue
		}
		env[k] = v
	}

	for k, v := range overrides {
		if foldCase {
			// one spelling per name, otherwise the child sees whichever
			// the OS picks first
			for existing := range env {
				if existing != k && strings.EqualFold(existing, k) {
					delete(env, existing)
				}
			}
		}
		env[k] = v
	}
	return env
}

func hasAnyPrefix(key string, prefixes []string, foldCase bool) bool {
	for _, prefix := range prefixes {
		if len(key) < len(prefix) {
			continue
		}
		if foldCase {
			if strings.EqualFold(key[:len(prefix)], prefix) {
				return true
			}
		} else if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
