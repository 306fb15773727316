package main

import (
	"context"
	"os"
	"time"

	"github.com/poormans/rategate/internal/probe"
)

// routecheck pokes the gateway's demo route and prints what came back.
// It always exits 0; an unreachable gateway is a finding, not a failure.

const (
	targetURL = "http://localhost:8080/test/api/hello"
	timeout   = 5 * time.Second
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	f := probe.NewFetcher(timeout)
	ex, err := f.Fetch(ctx, targetURL)
	probe.WriteReport(os.Stdout, targetURL, ex, err)
}
