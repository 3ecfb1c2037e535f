// Package resource tracks opaque native handles and their release obligations.
//
// Every handle the native library hands out (core instances, futures,
// streams, encryption sessions, buffers) is created by one native call and
// must be destroyed by exactly one paired call. A Registry enforces that
// pairing.
//
// # Guards
//
// Register wraps a handle in a Guard:
//
//	reg := resource.NewRegistry()
//	g, err := reg.Register(resource.KindStream, ptr, func(p native.Pointer) error {
//	    return closeStream(p)
//	})
//
//	// Use the handle
//	p, err := g.Acquire()
//	if err != nil {
//	    return err // released
//	}
//	defer g.Done()
//
//	// Release it
//	g.Release()
//
// Release may be called from several goroutines; only the first call runs
// the destructor. A release that races with an in-flight use is deferred
// until the use ends. A guard that becomes unreachable without being
// released is destroyed by a runtime cleanup.
//
// # Sharding
//
// Entries live in fixed shards keyed by registration key. Writers on
// distinct keys never share a lock.
//
// # Observers
//
// Observers receive registration and release events and are used to export
// handle gauges:
//
//	reg.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    if e.Type == resource.EventCollected {
//	        log.Printf("%s handle %d leaked and was collected", e.Kind, e.Key)
//	    }
//	}))
package resource
