// Package billingsync keeps Paddle in step with local subscription state.
//
// Sink is a dispatch.Sink that pauses, resumes and cancels the Paddle
// subscription linked to a local one. Linking happens on the way in:
// WebhookParser verifies a Paddle notification and Reconciler stores the
// provider id through lifecycle.Service.LinkProvider.
//
//	sink, err := billingsync.NewSinkFromConfig(cfg)
//	queue := dispatch.NewQueue(dispatch.KindFilter(sink, sink.Kinds()...))
//
// Local state stays authoritative; provider failures are reported to the
// dispatcher and never roll back a committed transition.
package billingsync
