package deploy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vitalratel/peleka/pkg/runtime"
)

// ParsePorts parses the raw port specs a Config carries into
// runtime.PortBinding values. Accepted forms: "cport", "hport:cport",
// "host-ip:hport:cport", each with an optional "/tcp" or "/udp" suffix
// (default tcp).
func ParsePorts(specs []string) ([]runtime.PortBinding, error) {
	bindings := make([]runtime.PortBinding, 0, len(specs))
	for _, spec := range specs {
		b, err := parsePort(spec)
		if err != nil {
			return nil, fmt.Errorf("deploy: parsing port %q: %w", spec, err)
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

func parsePort(spec string) (runtime.PortBinding, error) {
	proto := runtime.ProtoTCP
	if strings.HasSuffix(spec, "/udp") {
		proto = runtime.ProtoUDP
		spec = strings.TrimSuffix(spec, "/udp")
	} else if strings.HasSuffix(spec, "/tcp") {
		spec = strings.TrimSuffix(spec, "/tcp")
	}

	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 1:
		cport, err := strconv.Atoi(parts[0])
		if err != nil {
			return runtime.PortBinding{}, fmt.Errorf("invalid container port: %w", err)
		}
		return runtime.PortBinding{ContainerPort: cport, Protocol: proto}, nil

	case 2:
		hport, err := strconv.Atoi(parts[0])
		if err != nil {
			return runtime.PortBinding{}, fmt.Errorf("invalid host port: %w", err)
		}
		cport, err := strconv.Atoi(parts[1])
		if err != nil {
			return runtime.PortBinding{}, fmt.Errorf("invalid container port: %w", err)
		}
		return runtime.PortBinding{HostPort: hport, ContainerPort: cport, Protocol: proto}, nil

	case 3:
		hport, err := strconv.Atoi(parts[1])
		if err != nil {
			return runtime.PortBinding{}, fmt.Errorf("invalid host port: %w", err)
		}
		cport, err := strconv.Atoi(parts[2])
		if err != nil {
			return runtime.PortBinding{}, fmt.Errorf("invalid container port: %w", err)
		}
		return runtime.PortBinding{HostIP: parts[0], HostPort: hport, ContainerPort: cport, Protocol: proto}, nil

	default:
		return runtime.PortBinding{}, fmt.Errorf("unrecognized port spec")
	}
}
