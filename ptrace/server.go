package ptrace

import (
	"context"
	"runtime"
)

// operation runs on the trace server's locked os thread.
type operation func() error

type call struct {
	run operation

	// The server exits after a detaching call.
	detach bool

	done chan error
}

type traceServer struct {
	cancel func()
	ctx    context.Context

	calls chan call
}

func newTraceServer() *traceServer {
	ctx, cancel := context.WithCancel(context.Background())

	server := &traceServer{
		cancel: cancel,
		ctx:    ctx,
		calls:  make(chan call),
	}

	go server.serve()
	return server
}

func (server *traceServer) serve() {
	runtime.LockOSThread()
	defer func() {
		server.cancel()
		runtime.UnlockOSThread()
	}()

	for call := range server.calls {
		call.done <- call.run()
		if call.detach {
			return
		}
	}
}

// shutdown stops a server whose tracee was never attached.
func (server *traceServer) shutdown() {
	close(server.calls)
}
