// Package dispatch carries side-effect intents (notifications, billing
// provider calls) out of the core after a state change has been committed.
//
// Producers build Intent values and hand them to a Dispatcher. Queue is the
// production Dispatcher: a bounded buffer drained by a worker pool, retrying
// failed deliveries with a constant backoff and dropping (with a log line)
// when the buffer is full. Delivery never feeds back into core decisions.
//
//	q := dispatch.NewQueue(dispatch.MultiSink{emailSink, paddleSink},
//		dispatch.WithWorkers(4), dispatch.WithLogger(log))
//	q.Start(ctx)
//	defer q.Close()
//
// Recorder captures intents in memory for tests.
package dispatch
