package deploy

import (
	"fmt"
	"strings"

	"github.com/vitalratel/peleka/pkg/runtime"
)

// ParseMounts parses the raw volume specs a Config carries into
// runtime.Mount values. Accepted forms: "src:tgt" or "src:tgt:ro".
func ParseMounts(specs []string) ([]runtime.Mount, error) {
	mounts := make([]runtime.Mount, 0, len(specs))
	for _, spec := range specs {
		m, err := parseMount(spec)
		if err != nil {
			return nil, fmt.Errorf("deploy: parsing volume %q: %w", spec, err)
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

func parseMount(spec string) (runtime.Mount, error) {
	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 2:
		return runtime.Mount{Source: parts[0], Target: parts[1]}, nil
	case 3:
		if parts[2] != "ro" {
			return runtime.Mount{}, fmt.Errorf("unrecognized mount option %q", parts[2])
		}
		return runtime.Mount{Source: parts[0], Target: parts[1], ReadOnly: true}, nil
	default:
		return runtime.Mount{}, fmt.Errorf("expected \"src:tgt\" or \"src:tgt:ro\"")
	}
}
