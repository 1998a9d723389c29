package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	ollama "github.com/haowjy/meridian-ollama-go"
)

// Probe-specific flag values.
var (
	probeHost    string
	probePort    int
	probeTimeout time.Duration
)

// probeCmd checks whether the service accepts TCP connections.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check whether the service endpoint is reachable",
	Long: `Open and immediately close a TCP connection to host:port.
Exits 0 when reachable, 2 when not, 1 on invalid host or port.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeHost, "host", ollama.DefaultHost, "service host")
	probeCmd.Flags().IntVar(&probePort, "port", ollama.DefaultPort, "service port")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", ollama.DefaultProbeTimeout, "connect timeout")
}

func runProbe(cmd *cobra.Command, _ []string) error {
	ok, err := ollama.IsReachableContext(cmd.Context(), probeHost, probePort, probeTimeout)
	if err != nil {
		return exitError(ExitInvalidArgs, "meridian-generate: %v", err)
	}

	addr := net.JoinHostPort(probeHost, strconv.Itoa(probePort))
	w := cmd.OutOrStdout()
	if !ok {
		_, _ = fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed).Sprint("unreachable"), addr)
		return exitError(ExitUnreachable, "")
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", color.New(color.FgGreen).Sprint("reachable"), addr)
	return nil
}
