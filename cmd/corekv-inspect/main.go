// Command corekv-inspect connects to a cluster using the seeds given on the
// command line and prints its current node status once, or, with -watch,
// once per tend interval until interrupted. It prints no partition status.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/flinkv/corekv-go/pkg/corekv"
)

func main() {
	seeds := flag.String("seeds", "127.0.0.1:3000", "comma-separated host:port seed list")
	watch := flag.Bool("watch", false, "keep printing status once per tend interval")
	flag.Parse()

	hosts, err := parseSeeds(*seeds)
	if err != nil {
		color.Red("corekv-inspect: %v", err)
		os.Exit(1)
	}

	policy := corekv.DefaultClientPolicy()
	policy.Hosts = hosts

	cl, err := corekv.NewCluster(policy)
	if err != nil {
		color.Red("corekv-inspect: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = cl.Connect(ctx)
	cancel()
	if err != nil {
		color.Red("corekv-inspect: connect failed: %v", err)
		os.Exit(1)
	}
	defer cl.Close()

	printStatus(cl)
	if !*watch {
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(policy.TendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			printStatus(cl)
		case <-sigCh:
			return
		}
	}
}

func printStatus(cl *corekv.Cluster) {
	bold := color.New(color.Bold)
	bold.Printf("%s\n", cl)

	for _, n := range cl.Stats() {
		marker := color.GreenString("active")
		if !n.Active {
			marker = color.RedString("inactive")
		}
		idx := ""
		if n.HasBatchIndex {
			idx = color.CyanString(" batch-index")
		}
		fmt.Printf("  %-22s %-20s %s failures=%d friends=%d%s\n",
			n.Name, n.Address, marker, n.Failures, n.Friends, idx)
	}
}

func parseSeeds(s string) ([]corekv.Host, error) {
	var hosts []corekv.Host
	for _, hp := range strings.Split(s, ",") {
		hp = strings.TrimSpace(hp)
		if hp == "" {
			continue
		}
		host, portStr, err := splitHostPort(hp)
		if err != nil {
			return nil, err
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("bad port in %q: %w", hp, err)
		}
		hosts = append(hosts, corekv.Host{Name: host, Port: port})
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no seeds given")
	}
	return hosts, nil
}

func splitHostPort(hp string) (string, string, error) {
	i := strings.LastIndex(hp, ":")
	if i < 0 {
		return "", "", fmt.Errorf("seed %q must be host:port", hp)
	}
	return hp[:i], hp[i+1:], nil
}
