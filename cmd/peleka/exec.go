package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitalratel/peleka/pkg/log"
	"github.com/vitalratel/peleka/pkg/runtime"
)

var execCmd = &cobra.Command{
	Use:   "exec -- COMMAND [ARG...]",
	Short: "Run an ad-hoc command inside the service's running container",
	Long: `Exec connects to the first configured server (or the one named by
--server), finds the running managed container for the service, and runs
COMMAND inside it. Once the command exits, its stdout/stderr are written
out and peleka exits with the command's own exit code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().String("server", "", "Server to exec on (defaults to the first configured server)")
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resolved, err := loadResolved(cmd)
	if err != nil {
		return err
	}
	if len(resolved.Servers) == 0 {
		return fmt.Errorf("no servers configured")
	}

	serverName, _ := cmd.Flags().GetString("server")
	server := resolved.Servers[0]
	if serverName != "" {
		found := false
		for _, s := range resolved.Servers {
			if s.Host == serverName {
				server, found = s, true
				break
			}
		}
		if !found {
			return fmt.Errorf("no such server %q in peleka.yml", serverName)
		}
	}

	service := resolved.Config.Service.String()
	conn, err := dialHost(ctx, server, log.WithHost(server.Host))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", server.Host, err)
	}
	defer conn.session.Disconnect(ctx)

	active, ok, err := activeContainer(ctx, conn.client, service)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no running container for service %q on %s", service, server.Host)
	}

	result, err := conn.client.Exec(ctx, active.ID, runtime.ExecConfig{Command: args})
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	os.Stdout.Write(result.Stdout)
	os.Stderr.Write(result.Stderr)
	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}
