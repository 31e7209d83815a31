// Package descriptor allocates bind groups ("descriptor sets") from
// growable chunked pools.
//
// Each Layout gets its own Pool. Slots are handed out from a slab; the
// first chunk holds Config.FirstChunkSize slots and every following chunk
// doubles in size until Config.VariableSizedChunkCount chunks exist, after
// which chunks stay at the largest size. A released Set keeps its slot
// until FlushChanges has been called with a frame at least
// Config.MaxFramesInFlight past the release, so in-flight command buffers
// never see a bind group destroyed under them.
//
// Layouts may declare internal buffers: uniform or storage bindings whose
// backing buffer is owned by the pool and filled per set with
// WriteSet.SetBufferData.
package descriptor
