package runtime

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"

	"github.com/vitalratel/peleka/pkg/id"
)

// newStdcopyPipe returns a connected pipe for feeding a hand-built
// stdcopy-framed stream to demultiplex/streamDemuxed.
func newStdcopyPipe(t *testing.T) (*io.PipeReader, *io.PipeWriter) {
	t.Helper()
	r, w := io.Pipe()
	return r, w
}

// writeStdcopyFrame writes one stdcopy frame (8-byte header + payload) for
// the given stream byte (1 = stdout, 2 = stderr).
func writeStdcopyFrame(w io.Writer, stream byte, payload []byte) {
	header := make([]byte, 8)
	header[0] = stream
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	_, _ = w.Write(header)
	_, _ = w.Write(payload)
}

func TestToDockerConfigsMapsPublishedPortToBinding(t *testing.T) {
	cfg := ContainerConfig{
		Name:  "web",
		Image: "example/web:1",
		Ports: []PortBinding{
			{ContainerPort: 8080, HostPort: 8080, HostIP: "0.0.0.0", Protocol: "tcp"},
		},
	}

	containerCfg, hostCfg, _, err := toDockerConfigs(cfg)
	if err != nil {
		t.Fatalf("toDockerConfigs: %v", err)
	}

	if _, ok := containerCfg.ExposedPorts["8080/tcp"]; !ok {
		t.Fatalf("expected 8080/tcp exposed, got %v", containerCfg.ExposedPorts)
	}
	bindings, ok := hostCfg.PortBindings["8080/tcp"]
	if !ok || len(bindings) != 1 {
		t.Fatalf("expected one host binding for 8080/tcp, got %v", hostCfg.PortBindings)
	}
	if bindings[0].HostPort != "8080" {
		t.Errorf("HostPort = %q, want 8080", bindings[0].HostPort)
	}
}

func TestToDockerConfigsOmitsBindingForUnpublishedPort(t *testing.T) {
	cfg := ContainerConfig{
		Name:  "web",
		Image: "example/web:1",
		Ports: []PortBinding{
			{ContainerPort: 9090, Protocol: "tcp"},
		},
	}

	containerCfg, hostCfg, _, err := toDockerConfigs(cfg)
	if err != nil {
		t.Fatalf("toDockerConfigs: %v", err)
	}

	if _, ok := containerCfg.ExposedPorts["9090/tcp"]; !ok {
		t.Fatalf("expected 9090/tcp still exposed, got %v", containerCfg.ExposedPorts)
	}
	if _, ok := hostCfg.PortBindings["9090/tcp"]; ok {
		t.Errorf("unpublished port should have no host binding, got %v", hostCfg.PortBindings)
	}
}

func TestToDockerConfigsBuildsReadOnlyMountSpec(t *testing.T) {
	cfg := ContainerConfig{
		Name:  "web",
		Image: "example/web:1",
		Mounts: []Mount{
			{Source: "/host/data", Target: "/data", ReadOnly: true},
		},
	}

	_, hostCfg, _, err := toDockerConfigs(cfg)
	if err != nil {
		t.Fatalf("toDockerConfigs: %v", err)
	}

	want := "/host/data:/data:ro"
	if len(hostCfg.Binds) != 1 || hostCfg.Binds[0] != want {
		t.Errorf("Binds = %v, want [%s]", hostCfg.Binds, want)
	}
}

func TestToDockerConfigsRejectsInvalidPort(t *testing.T) {
	cfg := ContainerConfig{
		Name:  "web",
		Image: "example/web:1",
		Ports: []PortBinding{
			{ContainerPort: 80, Protocol: "not-a-protocol"},
		},
	}

	if _, _, _, err := toDockerConfigs(cfg); err == nil {
		t.Fatal("expected error for invalid port protocol, got nil")
	}
}

func TestToDockerConfigsSetsNetworkAliases(t *testing.T) {
	cfg := ContainerConfig{
		Name:           "web",
		Image:          "example/web:1",
		NetworkName:    "peleka-net",
		NetworkAliases: []string{"web-blue"},
	}

	_, _, netCfg, err := toDockerConfigs(cfg)
	if err != nil {
		t.Fatalf("toDockerConfigs: %v", err)
	}

	ep, ok := netCfg.EndpointsConfig["peleka-net"]
	if !ok {
		t.Fatalf("expected endpoint config for peleka-net, got %v", netCfg.EndpointsConfig)
	}
	if len(ep.Aliases) != 1 || ep.Aliases[0] != "web-blue" {
		t.Errorf("Aliases = %v, want [web-blue]", ep.Aliases)
	}
}

func TestToContainerInfoMapsHealthAndNetworks(t *testing.T) {
	resp := dockercontainer.InspectResponse{
		ContainerJSONBase: &dockercontainer.ContainerJSONBase{
			ID:   "abc123",
			Name: "/web-blue",
			State: &dockercontainer.State{
				Status: "running",
				Health: &dockercontainer.Health{Status: "healthy"},
			},
		},
		Config: &dockercontainer.Config{
			Labels: map[string]string{"peleka.managed": "true"},
		},
		NetworkSettings: &dockercontainer.NetworkSettings{
			Networks: map[string]*dockernetwork.EndpointSettings{
				"peleka-net": {IPAddress: "10.0.0.5", Aliases: []string{"web-blue"}},
			},
		},
	}

	info := toContainerInfo(resp)

	if info.ID != id.New[id.Container]("abc123") {
		t.Errorf("ID = %v, want abc123", info.ID)
	}
	if info.State != ContainerState("running") {
		t.Errorf("State = %v, want running", info.State)
	}
	if info.Health != HealthState("healthy") {
		t.Errorf("Health = %v, want healthy", info.Health)
	}
	if info.Labels["peleka.managed"] != "true" {
		t.Errorf("Labels = %v, missing peleka.managed", info.Labels)
	}
	net, ok := info.Networks["peleka-net"]
	if !ok || net.IPAddress != "10.0.0.5" {
		t.Errorf("Networks[peleka-net] = %v, want IPAddress 10.0.0.5", net)
	}
}

func TestToContainerInfoDefaultsHealthToNoneWithoutHealthcheck(t *testing.T) {
	resp := dockercontainer.InspectResponse{
		ContainerJSONBase: &dockercontainer.ContainerJSONBase{
			ID: "def456",
			State: &dockercontainer.State{
				Status: "running",
			},
		},
	}

	info := toContainerInfo(resp)

	if info.Health != HealthNone {
		t.Errorf("Health = %v, want HealthNone", info.Health)
	}
}

func TestTranslateContainerErrMapsNotFound(t *testing.T) {
	err := translateContainerErr(errdefs.NotFound(errors.New("no such container")), "container.stop", "abc123")
	if !IsKind(err, NotFound) {
		t.Errorf("expected NotFound kind, got %v", err)
	}
}

func TestTranslateContainerErrMapsConflictToInUse(t *testing.T) {
	err := translateContainerErr(errdefs.Conflict(errors.New("already in use")), "container.remove", "abc123")
	if !IsKind(err, InUse) {
		t.Errorf("expected InUse kind, got %v", err)
	}
}

func TestTranslateContainerErrFallsBackToRuntimeError(t *testing.T) {
	err := translateContainerErr(errors.New("boom"), "container.start", "abc123")
	if !IsKind(err, RuntimeError) {
		t.Errorf("expected RuntimeError kind, got %v", err)
	}
}

func TestTranslateContainerErrPassesThroughNil(t *testing.T) {
	if err := translateContainerErr(nil, "container.start", "abc123"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestDemultiplexSplitsStdoutAndStderr(t *testing.T) {
	r, w := newStdcopyPipe(t)
	go func() {
		writeStdcopyFrame(w, 1, []byte("out\n"))
		writeStdcopyFrame(w, 2, []byte("err\n"))
		w.Close()
	}()

	stdout, stderr, err := demultiplex(r)
	if err != nil {
		t.Fatalf("demultiplex: %v", err)
	}
	if string(stdout) != "out\n" {
		t.Errorf("stdout = %q, want %q", stdout, "out\n")
	}
	if string(stderr) != "err\n" {
		t.Errorf("stderr = %q, want %q", stderr, "err\n")
	}
}

func TestStreamDemuxedEmitsOneEntryPerFrame(t *testing.T) {
	r, w := newStdcopyPipe(t)
	go func() {
		writeStdcopyFrame(w, 1, []byte("line one\n"))
		writeStdcopyFrame(w, 2, []byte("line two\n"))
		w.Close()
	}()

	out := make(chan LogEntry, 4)
	done := make(chan struct{})
	go func() {
		streamDemuxed(r, out, false)
		close(out)
		close(done)
	}()

	var got []LogEntry
	for entry := range out {
		got = append(got, entry)
	}
	<-done

	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(got), got)
	}
	if got[0].Stream != StreamStdout || string(got[0].Content) != "line one\n" {
		t.Errorf("entry[0] = %+v, want stdout %q", got[0], "line one\n")
	}
	if got[1].Stream != StreamStderr || string(got[1].Content) != "line two\n" {
		t.Errorf("entry[1] = %+v, want stderr %q", got[1], "line two\n")
	}

	select {
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stream to close")
	default:
	}
}
