// Package resource provides reference-counted handles to backend objects
// with frame-delayed destruction.
//
// Releasing the last reference to an Arc never destroys the object. The
// value is pushed onto a lock-free DropQueue; the owning manager drains the
// queue once per frame into a DropSink, which destroys the object only
// after every frame that might still reference it has retired on the GPU.
//
//	mgr := resource.NewDynSetManager(ctx)
//	alloc := mgr.CreateAllocator()
//	img, err := alloc.CreateImage(desc)
//	...
//	img.Release()           // queued, not destroyed
//	mgr.OnFrameComplete()   // destroyed MaxFramesInFlight+1 frames later
package resource
