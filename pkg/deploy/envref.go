package deploy

import (
	"fmt"
	"os"
)

// ResolveEnv merges cfg's literal env entries with its env-references,
// each of which yields the named process environment variable or its
// configured default. A reference with neither the variable set nor a
// default is an error.
func ResolveEnv(cfg Config) (map[string]string, error) {
	env := make(map[string]string, len(cfg.Env)+len(cfg.EnvRefs))
	for k, v := range cfg.Env {
		env[k] = v
	}
	for k, ref := range cfg.EnvRefs {
		if v, ok := os.LookupEnv(ref.Var); ok {
			env[k] = v
			continue
		}
		if ref.Default != nil {
			env[k] = *ref.Default
			continue
		}
		return nil, newError(KindConfigError, fmt.Sprintf("env %q references unset variable %q with no default", k, ref.Var), nil)
	}
	return env, nil
}
