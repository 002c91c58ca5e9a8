// Command proxyctl is the operator-facing control client: it signals a
// running proxy process via its PID file and, for stats, queries the
// admin HTTP surface. Command structure follows the cobra.Command /
// RunE / subcommand-builder-method shape used by the teacher's
// migrations CLI.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/lordbasex/goproxylb/internal/pidfile"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "proxyctl:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var pidPath string
	var adminAddr string

	root := &cobra.Command{
		Use:   "proxyctl",
		Short: "Control a running goproxylb instance",
	}
	root.PersistentFlags().StringVar(&pidPath, "pidfile", "/var/run/goproxylb.pid", "path to the proxy's PID file")
	root.PersistentFlags().StringVar(&adminAddr, "admin-addr", "http://127.0.0.1:9090", "base URL of the admin listener")

	root.AddCommand(
		reloadCommand(&pidPath),
		drainCommand(&pidPath),
		statsCommand(&adminAddr),
	)
	return root
}

func reloadCommand(pidPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Trigger a configuration hot reload (SIGHUP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return signalFromPidfile(*pidPath, unix.SIGHUP)
		},
	}
}

func drainCommand(pidPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Request a graceful drain and shutdown (SIGTERM)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return signalFromPidfile(*pidPath, unix.SIGTERM)
		},
	}
}

func statsCommand(adminAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the current statistics snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStats(*adminAddr)
		},
	}
}

func signalFromPidfile(pidPath string, sig unix.Signal) error {
	pid, err := pidfile.Read(pidPath)
	if err != nil {
		return fmt.Errorf("read pidfile %q: %w", pidPath, err)
	}
	if !pidfile.Alive(pid) {
		return fmt.Errorf("pid %d from %q is not running", pid, pidPath)
	}
	if err := unix.Kill(pid, sig); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	fmt.Printf("sent signal to pid %d\n", pid)
	return nil
}

func printStats(adminAddr string) error {
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(adminAddr + "/stats")
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read stats response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stats endpoint returned %s: %s", resp.Status, body)
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	return nil
}
