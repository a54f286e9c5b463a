// Command sfu-worker is the SFU media worker process entry point. It opens
// the two file descriptors inherited from the supervisor, wires them into a
// netstring control channel, and dispatches requests against an in-memory
// table of rooms, following the exit-code and fd-inheritance contract of
// spec §6.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/mediaforge/sfuworker/channel"
	"github.com/mediaforge/sfuworker/invariant"
	"github.com/mediaforge/sfuworker/workerconfig"
	"github.com/mediaforge/sfuworker/workerlog"
)

const (
	exitClean           = 0
	exitInitError       = 41
	exitInvariantBreach = 42
	exitSignalTerminate = 43
)

var log = workerlog.For("main")

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the worker's YAML config file")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "sfu-worker: -config is required")
		return exitInitError
	}

	cfg, err := workerconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sfu-worker: %v\n", err)
		return exitInitError
	}
	workerlog.SetLevel(cfg.LogLevel)

	readFile := os.NewFile(uintptr(cfg.ChannelReadFD), "channel-read")
	writeFile := os.NewFile(uintptr(cfg.ChannelWriteFD), "channel-write")
	if readFile == nil || writeFile == nil {
		fmt.Fprintln(os.Stderr, "sfu-worker: invalid inherited channel file descriptors")
		return exitInitError
	}
	transport := &pipeTransport{read: readFile, write: writeFile}

	worker := newWorker()
	conn := channel.New(transport, cfg.ChannelBufferSize, worker, nil)
	worker.conn = conn

	var signaled atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		signaled.Store(true)
		log.Info("received termination signal, closing channel")
		conn.Close()
	}()

	exitCode := runLoop(conn)
	if exitCode == exitClean && signaled.Load() {
		return exitSignalTerminate
	}
	return exitCode
}

// runLoop drives the channel's read loop to completion (it returns once
// the channel closes) and recovers exactly one invariant breach, per spec
// §7's "abort the process" policy realized as Go panic/recover.
func runLoop(conn *channel.Conn) (exitCode int) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*invariant.Breach); ok {
				log.WithField("breach", fmt.Sprint(r)).Error("invariant breach, aborting")
			} else {
				log.WithField("panic", fmt.Sprint(r)).Error("unrecovered panic, aborting")
			}
			exitCode = exitInvariantBreach
		}
	}()

	conn.Run()
	return exitClean
}

// pipeTransport adapts the two inherited unidirectional file descriptors to
// channel.Transport's single Read/Write/Close surface.
type pipeTransport struct {
	read  *os.File
	write *os.File
}

func (t *pipeTransport) Read(p []byte) (int, error)  { return t.read.Read(p) }
func (t *pipeTransport) Write(p []byte) (int, error) { return t.write.Write(p) }

func (t *pipeTransport) Close() error {
	readErr := t.read.Close()
	writeErr := t.write.Close()
	if readErr != nil {
		return readErr
	}
	return writeErr
}
