package extension

import (
	"context"
	"os"
	osSignal "os/signal"
	"sync"
	"syscall"
)

type SignalHandler interface {
	HandleSignal(signal os.Signal)
}

// SignalRouter owns the process's single SIGINT handler.  A nil handler
// means the default disposition.
type SignalRouter interface {
	// Install returns the previously installed handler.
	Install(handler SignalHandler) SignalHandler
	Installed() SignalHandler
}

type OSSignalRouter struct {
	mutex   sync.Mutex
	handler SignalHandler

	signals chan os.Signal
	ctx     context.Context
	cancel  func()
}

// NewSignalRouter returns an os/signal backed router.  Signals are delivered
// to the installed handler on a dedicated goroutine.
func NewSignalRouter() *OSSignalRouter {
	ctx, cancel := context.WithCancel(context.Background())
	router := &OSSignalRouter{
		signals: make(chan os.Signal, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	go router.forward()
	return router
}

func (router *OSSignalRouter) forward() {
	for {
		select {
		case <-router.ctx.Done():
			return
		case signal := <-router.signals:
			handler := router.Installed()
			if handler != nil {
				handler.HandleSignal(signal)
			}
		}
	}
}

func (router *OSSignalRouter) Install(handler SignalHandler) SignalHandler {
	router.mutex.Lock()
	defer router.mutex.Unlock()

	previous := router.handler
	router.handler = handler

	if handler == nil {
		osSignal.Reset(syscall.SIGINT)
	} else if previous == nil {
		osSignal.Notify(router.signals, syscall.SIGINT)
	}

	return previous
}

func (router *OSSignalRouter) Installed() SignalHandler {
	router.mutex.Lock()
	defer router.mutex.Unlock()

	return router.handler
}

func (router *OSSignalRouter) Close() error {
	router.Install(nil)
	router.cancel()
	return nil
}

type debuggerSigintHandler struct {
	registry *Registry
}

func (handler *debuggerSigintHandler) HandleSignal(os.Signal) {
	handler.registry.SetQuitFlag()
}

// Activation is the state saved by SetActive.  It must be handed back to
// Restore in LIFO order.
type Activation struct {
	previous *Descriptor

	handlerSaved bool
	savedHandler SignalHandler
}

func (registry *Registry) Active() *Descriptor {
	return registry.active.Load()
}

func usesCooperativeSigint(lang *Descriptor) bool {
	if lang.Tag == TagBuiltin {
		return true
	}
	_, ok := lang.Ops.(QuitFlagChecker)
	return ok
}

// SetActive makes lang the active extension language.  It returns nil while
// cooperative SIGINT handling is disabled.
func (registry *Registry) SetActive(lang *Descriptor) *Activation {
	if registry.cooperativeDisabled {
		_, ok := registry.Active().Ops.(QuitFlagChecker)
		if ok {
			panic("should never happen")
		}
		return nil
	}

	activation := &Activation{
		previous: registry.Active(),
	}
	registry.activations = append(registry.activations, activation)
	registry.active.Store(lang)

	if usesCooperativeSigint(lang) {
		previous := registry.router.Install(registry.sigintHandler)
		if previous != SignalHandler(registry.sigintHandler) {
			activation.handlerSaved = true
			activation.savedHandler = previous
		}
	}

	// Carry a pending interrupt over to the newly active language.
	if registry.CheckQuitFlag() {
		registry.SetQuitFlag()
	}

	return activation
}

func (registry *Registry) Restore(activation *Activation) {
	if registry.cooperativeDisabled {
		if activation != nil {
			panic("should never happen")
		}
		return
	}

	last := len(registry.activations) - 1
	if last < 0 || registry.activations[last] != activation {
		panic("should never happen")
	}
	registry.activations = registry.activations[:last]

	registry.active.Store(activation.previous)

	if activation.handlerSaved {
		registry.router.Install(activation.savedHandler)
	}

	if registry.CheckQuitFlag() {
		registry.SetQuitFlag()
	}
}

// withActive runs fn with lang active.
func (registry *Registry) withActive(lang *Descriptor, fn func() error) error {
	activation := registry.SetActive(lang)
	defer registry.Restore(activation)

	return fn()
}

// DisableCooperativeSigintHandling makes the builtin language active and
// keeps extension languages from intercepting SIGINT until the returned
// function is called.
func (registry *Registry) DisableCooperativeSigintHandling() func() {
	activation := registry.SetActive(registry.builtin)
	previouslyDisabled := registry.cooperativeDisabled
	registry.cooperativeDisabled = true

	return func() {
		registry.cooperativeDisabled = previouslyDisabled
		registry.Restore(activation)
	}
}

// InferiorRunning disables cooperative SIGINT handling and routes SIGINT to
// forward (the running inferior) until the returned function is called.
func (registry *Registry) InferiorRunning(forward SignalHandler) func() {
	enable := registry.DisableCooperativeSigintHandling()
	previous := registry.router.Install(forward)

	return func() {
		registry.router.Install(previous)
		enable()
	}
}

func (registry *Registry) withDefaultSigint(fn func() error) error {
	previous := registry.router.Install(nil)
	defer registry.router.Install(previous)

	return fn()
}

// SetQuitFlag records an interrupt request.  Safe to call from the signal
// delivery goroutine.
func (registry *Registry) SetQuitFlag() {
	setter, ok := registry.Active().Ops.(QuitFlagSetter)
	if ok {
		setter.SetQuitFlag()
		return
	}

	registry.quitFlag.Store(true)
	select {
	case registry.wakeup <- struct{}{}:
	default:
	}
}

// CheckQuitFlag returns true if any language or the debugger itself has a
// pending interrupt, clearing all of them.
func (registry *Registry) CheckQuitFlag() bool {
	result := false
	for _, lang := range registry.extensions {
		checker, ok := lang.Ops.(QuitFlagChecker)
		if ok && checker.CheckQuitFlag() {
			result = true
		}
	}

	if registry.quitFlag.Swap(false) {
		select {
		case <-registry.wakeup:
		default:
		}
		result = true
	}

	return result
}

// Wakeup is signaled whenever the debugger's own quit flag is set, so that
// blocked event loops can notice the interrupt.
func (registry *Registry) Wakeup() <-chan struct{} {
	return registry.wakeup
}
