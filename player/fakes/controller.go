// Package fakes provides scripted player implementations for tests.
package fakes

import (
	"context"
	"sync"

	"github.com/cimena/cinecast/player"
)

// Controller records every call and can be scripted to fail per op.
type Controller struct {
	mu     sync.Mutex
	loads  []string
	calls  []string
	failOp map[string]error
	panics map[string]bool
}

func NewController() *Controller {
	return &Controller{
		failOp: map[string]error{},
		panics: map[string]bool{},
	}
}

// FailWith makes op return err.
func (c *Controller) FailWith(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failOp[op] = err
}

// PanicOn makes op panic.
func (c *Controller) PanicOn(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panics[op] = true
}

// Loads returns the video ids loaded, in order.
func (c *Controller) Loads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.loads...)
}

// Calls returns every op invoked, in order.
func (c *Controller) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *Controller) record(op string) error {
	c.mu.Lock()
	c.calls = append(c.calls, op)
	shouldPanic := c.panics[op]
	err := c.failOp[op]
	c.mu.Unlock()

	if shouldPanic {
		panic("scripted panic: " + op)
	}
	return err
}

func (c *Controller) LoadByID(videoID string) error {
	if err := c.record("loadById"); err != nil {
		return err
	}
	c.mu.Lock()
	c.loads = append(c.loads, videoID)
	c.mu.Unlock()
	return nil
}

func (c *Controller) Mute() error           { return c.record("mute") }
func (c *Controller) Unmute() error         { return c.record("unmute") }
func (c *Controller) SetVolume(_ int) error { return c.record("setVolume") }
func (c *Controller) Destroy() error        { return c.record("destroy") }
func (c *Controller) Stop() error           { return c.record("stop") }

// Factory hands out a fixed controller and keeps the registered events so
// tests can inject ready/ended.
type Factory struct {
	mu         sync.Mutex
	controller *Controller
	events     player.Events
	acquires   int
	failErr    error
}

func NewFactory(controller *Controller) *Factory {
	return &Factory{controller: controller}
}

// FailWith makes every Acquire return err.
func (f *Factory) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

func (f *Factory) Acquire(_ context.Context, events player.Events) (player.Controller, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failErr != nil {
		return nil, f.failErr
	}
	f.acquires++
	f.events = events
	return f.controller, nil
}

// Acquires returns how many times Acquire succeeded.
func (f *Factory) Acquires() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires
}

// EmitEnded fires the registered OnEnded callback.
func (f *Factory) EmitEnded() {
	f.mu.Lock()
	cb := f.events.OnEnded
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// EmitReady fires the registered OnReady callback.
func (f *Factory) EmitReady() {
	f.mu.Lock()
	cb := f.events.OnReady
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}
