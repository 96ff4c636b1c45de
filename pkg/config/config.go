// Package config loads and validates peleka.yml, the project-level
// deployment manifest, and merges a selected destination's overrides
// into one run-ready deploy.Config shared by every target server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalratel/peleka/pkg/deploy"
	"github.com/vitalratel/peleka/pkg/imageref"
	"github.com/vitalratel/peleka/pkg/runtime"
	"github.com/vitalratel/peleka/pkg/sshsession"
	"github.com/vitalratel/peleka/pkg/svcname"
)

// candidateNames is the set of filenames Load searches for, in order,
// rooted at the project directory.
var candidateNames = []string{"peleka.yml", "peleka.yaml", filepath.Join(".peleka", "config.yml")}

// ErrConfigNotFound is returned by Load when none of the candidate
// filenames exist under the project root.
type ErrConfigNotFound struct {
	ProjectRoot string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config: no peleka.yml, peleka.yaml, or .peleka/config.yml found under %s", e.ProjectRoot)
}

// ErrNoServers is returned when the resolved server list is empty.
var ErrNoServers = fmt.Errorf("config: server list is empty")

// serverDoc is one entry of the top-level `servers` list, or of a
// destination's own `servers` override.
type serverDoc struct {
	raw string // set when the YAML entry was a bare string, "" otherwise

	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	User                 string `yaml:"user"`
	Runtime              string `yaml:"runtime"`
	Socket               string `yaml:"socket"`
	TrustFirstConnection *bool  `yaml:"trust_first_connection"`
}

// UnmarshalYAML accepts either a bare "[user@]host[:port]" scalar or a
// full mapping.
func (s *serverDoc) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		s.raw = value.Value
		return nil
	}
	type plain serverDoc
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = serverDoc(p)
	return nil
}

// Server is one resolved SSH target, ready to be dialed.
type Server struct {
	Host                 string
	Port                 int
	User                 string
	Runtime              runtime.Kind
	Socket               string
	TrustFirstConnection bool
}

// SSHConfig translates s into the dial configuration sshsession.Dial
// expects.
func (s Server) SSHConfig() sshsession.Config {
	return sshsession.Config{
		Host:                 s.Host,
		Port:                 s.Port,
		User:                 s.User,
		TrustFirstConnection: s.TrustFirstConnection,
	}
}

type healthCheckDoc struct {
	Cmd         string `yaml:"cmd"`
	Interval    string `yaml:"interval"`
	Timeout     string `yaml:"timeout"`
	Retries     int    `yaml:"retries"`
	StartPeriod string `yaml:"start_period"`
}

type envValueDoc struct {
	literal string
	ref     *deploy.EnvRef
}

func (e *envValueDoc) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		e.literal = value.Value
		return nil
	}
	var ref struct {
		Env     string  `yaml:"env"`
		Default *string `yaml:"default"`
	}
	if err := value.Decode(&ref); err != nil {
		return err
	}
	e.ref = &deploy.EnvRef{Var: ref.Env, Default: ref.Default}
	return nil
}

type resourcesDoc struct {
	Memory string `yaml:"memory"`
	CPUs   string `yaml:"cpus"`
}

type networkDoc struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

type stopDoc struct {
	Timeout string `yaml:"timeout"`
	Signal  string `yaml:"signal"`
}

type cleanupDoc struct {
	GracePeriod string `yaml:"grace_period"`
}

type loggingDoc struct {
	Driver  string            `yaml:"driver"`
	Options map[string]string `yaml:"options"`
}

// destinationDoc is one named override set under `destinations`.
type destinationDoc struct {
	Servers     []serverDoc            `yaml:"servers"`
	Env         map[string]envValueDoc `yaml:"env"`
	Labels      map[string]string      `yaml:"labels"`
	Ports       []string               `yaml:"ports"`
	Volumes     []string               `yaml:"volumes"`
	HealthCheck *healthCheckDoc        `yaml:"healthcheck"`
}

// document is the raw decoded shape of peleka.yml.
type document struct {
	Service           string                     `yaml:"service"`
	Image             string                     `yaml:"image"`
	Servers           []serverDoc                `yaml:"servers"`
	Ports             []string                   `yaml:"ports"`
	Volumes           []string                   `yaml:"volumes"`
	Env               map[string]envValueDoc     `yaml:"env"`
	Labels            map[string]string          `yaml:"labels"`
	Command           []string                   `yaml:"command"`
	HealthCheck       *healthCheckDoc            `yaml:"healthcheck"`
	HealthTimeout     string                     `yaml:"health_timeout"`
	ImagePullTimeout  string                     `yaml:"image_pull_timeout"`
	Resources         *resourcesDoc              `yaml:"resources"`
	Network           *networkDoc                `yaml:"network"`
	Restart           string                     `yaml:"restart"`
	Stop              *stopDoc                   `yaml:"stop"`
	Cleanup           *cleanupDoc                `yaml:"cleanup"`
	Logging           *loggingDoc                `yaml:"logging"`
	Strategy          string                     `yaml:"strategy"`
	Destinations      map[string]destinationDoc  `yaml:"destinations"`
}

// Resolved is a fully merged, validated configuration for one run:
// the deploy.Config every server will be deployed with, plus the list
// of servers to deploy it to.
type Resolved struct {
	Namespace string
	Config    deploy.Config
	Servers   []Server
}

// Load reads and parses the manifest under projectRoot, merges in the
// named destination's overrides (destination == "" means "use the
// top-level document as-is"), and validates the result.
func Load(projectRoot, destination string) (Resolved, error) {
	path, err := locate(projectRoot)
	if err != nil {
		return Resolved{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Resolved{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Resolved{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return resolve(doc, destination)
}

func locate(projectRoot string) (string, error) {
	for _, name := range candidateNames {
		path := filepath.Join(projectRoot, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", &ErrConfigNotFound{ProjectRoot: projectRoot}
}

func resolve(doc document, destination string) (Resolved, error) {
	service, err := svcname.Parse(doc.Service)
	if err != nil {
		return Resolved{}, &deploy.Error{Kind: deploy.KindConfigError, Message: "service", Err: err}
	}

	image, err := imageref.Parse(doc.Image)
	if err != nil {
		return Resolved{}, &deploy.Error{Kind: deploy.KindConfigError, Message: "image", Err: err}
	}

	servers := doc.Servers
	env := doc.Env
	labels := doc.Labels
	ports := doc.Ports
	volumes := doc.Volumes
	healthCheck := doc.HealthCheck

	if destination != "" {
		dest, ok := doc.Destinations[destination]
		if !ok {
			return Resolved{}, &deploy.Error{Kind: deploy.KindConfigError, Message: fmt.Sprintf("unknown destination %q", destination)}
		}
		if len(dest.Servers) > 0 {
			servers = dest.Servers
		}
		env = mergeEnv(env, dest.Env)
		labels = mergeLabels(labels, dest.Labels)
		if len(dest.Ports) > 0 {
			ports = dest.Ports
		}
		if len(dest.Volumes) > 0 {
			volumes = dest.Volumes
		}
		if dest.HealthCheck != nil {
			healthCheck = dest.HealthCheck
		}
	}

	if len(servers) == 0 {
		return Resolved{}, ErrNoServers
	}

	resolvedServers, err := resolveServers(servers)
	if err != nil {
		return Resolved{}, err
	}

	namespace := "peleka"
	networkName := namespace
	var networkAliases []string
	if doc.Network != nil {
		if doc.Network.Name != "" {
			networkName = doc.Network.Name
		}
		networkAliases = doc.Network.Aliases
	}

	literalEnv, envRefs, err := splitEnv(env)
	if err != nil {
		return Resolved{}, err
	}

	restartPolicy, err := parseRestart(doc.Restart)
	if err != nil {
		return Resolved{}, err
	}

	resources, err := parseResources(doc.Resources)
	if err != nil {
		return Resolved{}, err
	}

	hc, err := parseHealthCheck(healthCheck)
	if err != nil {
		return Resolved{}, err
	}

	healthTimeout, err := parseDurationOrDefault(doc.HealthTimeout, 120*time.Second)
	if err != nil {
		return Resolved{}, err
	}

	imagePullTimeout, err := parseDurationOrDefault(doc.ImagePullTimeout, 0)
	if err != nil {
		return Resolved{}, err
	}

	stopTimeout := 30 * time.Second
	if doc.Stop != nil {
		stopTimeout, err = parseDurationOrDefault(doc.Stop.Timeout, 30*time.Second)
		if err != nil {
			return Resolved{}, err
		}
	}

	gracePeriod := 30 * time.Second
	if doc.Cleanup != nil {
		gracePeriod, err = parseDurationOrDefault(doc.Cleanup.GracePeriod, 30*time.Second)
		if err != nil {
			return Resolved{}, err
		}
	}

	cfg := deploy.Config{
		Service:          service,
		Image:            image,
		Env:              literalEnv,
		EnvRefs:          envRefs,
		Labels:           labels,
		Ports:            ports,
		Volumes:          volumes,
		Command:          doc.Command,
		RestartPolicy:    restartPolicy,
		Resources:        resources,
		HealthCheck:      hc,
		StopTimeout:      stopTimeout,
		ImagePullPolicy:  runtime.PullIfMissing,
		ImagePullTimeout: imagePullTimeout,
		HealthTimeout:    healthTimeout,
		GracePeriod:      gracePeriod,
		Network:          deploy.NetworkConfig{Name: networkName, Aliases: networkAliases},
		Strategy:         deploy.Strategy(doc.Strategy),
	}

	return Resolved{Namespace: namespace, Config: cfg, Servers: resolvedServers}, nil
}

func mergeEnv(base, overlay map[string]envValueDoc) map[string]envValueDoc {
	if len(overlay) == 0 {
		return base
	}
	out := make(map[string]envValueDoc, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func mergeLabels(base, overlay map[string]string) map[string]string {
	if len(overlay) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func splitEnv(env map[string]envValueDoc) (map[string]string, map[string]deploy.EnvRef, error) {
	literal := make(map[string]string)
	refs := make(map[string]deploy.EnvRef)
	for k, v := range env {
		if v.ref != nil {
			refs[k] = *v.ref
			continue
		}
		literal[k] = v.literal
	}
	return literal, refs, nil
}

func resolveServers(docs []serverDoc) ([]Server, error) {
	servers := make([]Server, 0, len(docs))
	for _, d := range docs {
		s, err := resolveServer(d)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, nil
}
