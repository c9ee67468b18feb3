package service

import "github.com/hylarucoder/animatediff-webui/internal/model"

// Observer receives every lifecycle event of every job. Observe is called
// synchronously from the goroutine that produced the event.
type Observer interface {
	Observe(ev model.RenderEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev model.RenderEvent)

func (f ObserverFunc) Observe(ev model.RenderEvent) { f(ev) }
