package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// fakebroker stands in for sbin/rabbitmq-server in manual and integration
// runs. Like the real launcher script it spawns a long running child, the
// part erl plays, and prints what the launcher handed it.
type flagOptions struct {
	RunDuration int  `long:"run-duration" description:"Duration in seconds to run before exiting on its own"`
	ExitCode    int  `long:"exit-code" description:"Exit code to use when the run duration elapses"`
	Child       bool `long:"child" description:"Run as the spawned runtime process"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.IgnoreUnknown)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	role := "launcher"
	if opts.Child {
		role = "runtime"
	}

	fmt.Printf("Fakebroker %s starting, PID: %d, opts: %+v\n", role, os.Getpid(), opts)
	fmt.Printf("node: %s\n", os.Getenv("RABBITMQ_NODENAME"))
	fmt.Printf("base: %s\n", os.Getenv("RABBITMQ_BASE"))
	fmt.Printf("config: %s\n", os.Getenv("RABBITMQ_CONFIG_FILE"))
	fmt.Printf("erlang home: %s\n", os.Getenv("ERLANG_HOME"))

	ctx := context.Background()
	if opts.RunDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.RunDuration)*time.Second)
		defer cancel()
	}

	// Enable signal handling
	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Ctrl+Break arrives as os.Interrupt
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}

	var child *exec.Cmd
	if !opts.Child {
		child = exec.Command(os.Args[0], "--child", fmt.Sprintf("--run-duration=%d", opts.RunDuration))
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr
		if err := child.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start runtime child: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Fakebroker runtime started, PID: %d\n", child.Process.Pid)
	}

	fmt.Printf("Fakebroker %s is ready\n", role)

	exitCode := 0
	select {
	case receivedSignal := <-sig:
		fmt.Printf("Fakebroker %s received signal: %v\n", role, receivedSignal)
	case <-ctx.Done():
		fmt.Printf("Fakebroker %s run duration elapsed\n", role)
		exitCode = opts.ExitCode
	}

	if child != nil {
		// the runtime got the same group signal; wait for it like the
		// launcher script waits for erl
		_ = child.Wait()
	}

	fmt.Printf("Fakebroker %s stopped\n", role)
	os.Exit(exitCode)
}
