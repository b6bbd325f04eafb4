// Package event provides a pub-sub event bus that decouples the tuning
// coordinator from its observers.
//
// The coordinator publishes an event for every state transition, accepted
// or rejected shot, optimization, manual change, advance, backtrack and
// connectivity change. Metrics and diagnostic logging subscribe to the bus
// instead of being called from the state machine directly.
//
// # Main Types
//
//   - [Event]: Interface that all events implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Usage
//
//	bus := event.NewBus(nil)
//	bus.Subscribe(event.TypeOptimizationApplied, func(e event.Event) {
//	    applied := e.(event.OptimizationAppliedEvent)
//	    fmt.Println(applied.Coefficient, applied.Value)
//	})
//	bus.Publish(event.NewOptimizationAppliedEvent(time.Now(), "Drag", 0.47, 0.49, 10, time.Millisecond))
//
// Handlers are called synchronously on the publishing goroutine. A handler
// that panics is recovered and reported to the bus's [PanicHandler]; the
// other handlers still run.
package event
