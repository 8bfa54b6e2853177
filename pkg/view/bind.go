package view

import "github.com/statuspulse/incidentd/pkg/stream"

// Bind wires a stream client into the reconciler: parsed envelopes flow into
// ApplyDelta and the connected flag mirrors open/close/error transitions. The
// returned function detaches everything again.
func (r *Reconciler) Bind(c *stream.Client) func() {
	offMsg := c.OnMessage(r.ApplyDelta)
	offOpen := c.OnOpen(func() { r.SetConnected(true) })
	offClose := c.OnClose(func() { r.SetConnected(false) })
	offErr := c.OnError(func(error) { r.SetConnected(false) })
	return func() {
		offMsg()
		offOpen()
		offClose()
		offErr()
	}
}
