// Command agentsync-healthcheck probes a running session's debug
// endpoint and exits 0 when the session is online. Meant for container
// health checks.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6060", "debug listener address")
	timeout := flag.Duration("timeout", 2*time.Second, "probe timeout")
	flag.Parse()

	status, body, err := fasthttp.GetTimeout(nil, "http://"+*addr+"/healthz", *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unreachable: %v\n", err)
		os.Exit(1)
	}
	if status != fasthttp.StatusOK {
		fmt.Fprintf(os.Stderr, "unhealthy: %d %s\n", status, body)
		os.Exit(1)
	}
	fmt.Printf("%s\n", body)
}
