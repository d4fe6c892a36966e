// Command adhocmeshd runs one mesh routing node. It supports three
// subcommands: start runs the daemon in the foreground, stop signals a
// running instance to shut down, and restart does both in sequence.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/adhocmesh/adhocmeshd/internal/config"
	"github.com/adhocmesh/adhocmeshd/internal/daemon"
)

const pidFileName = "adhocmeshd.pid"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	sub, rest := args[0], args[1:]
	cfg, err := config.Parse(rest)
	if err != nil {
		log.Println(err)
		return 2
	}

	switch sub {
	case "start":
		return cmdStart(cfg)
	case "stop":
		return cmdStop(cfg)
	case "restart":
		if rc := cmdStop(cfg); rc != 0 {
			return rc
		}
		return cmdStart(cfg)
	default:
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: adhocmeshd <start|stop|restart> [flags]")
}

func cmdStart(cfg *config.Config) int {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Printf("adhocmeshd: create data dir: %v", err)
		return 2
	}
	path := pidFilePath(cfg)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		log.Printf("adhocmeshd: write pid file: %v", err)
		return 2
	}
	defer os.Remove(path)

	node, err := daemon.New(cfg)
	if err != nil {
		log.Printf("adhocmeshd: %v", err)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("adhocmeshd: starting on device %s, iface %s", cfg.DeviceName, cfg.IfaceName)
	if err := node.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("adhocmeshd: exited: %v", err)
		return 1
	}
	log.Println("adhocmeshd: shut down")
	return 0
}

func cmdStop(cfg *config.Config) int {
	path := pidFilePath(cfg)
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Printf("adhocmeshd: no running instance found at %s: %v", path, err)
		return 2
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		log.Printf("adhocmeshd: malformed pid file %s: %v", path, err)
		return 2
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		log.Printf("adhocmeshd: find process %d: %v", pid, err)
		return 2
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		log.Printf("adhocmeshd: signal process %d: %v", pid, err)
		return 2
	}
	waitForExit(path)
	return 0
}

// waitForExit polls for the pid file's removal, which the running
// instance's own shutdown path performs, so restart does not race a
// fresh start against an instance still holding the raw socket.
func waitForExit(path string) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func pidFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, pidFileName)
}
