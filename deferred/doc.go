// Package deferred moves acknowledged work off the request path.
//
// Three dispatchers implement core.TaskDispatcher:
//
//   - InProcess runs the lazy command on a detached goroutine in this process.
//   - Queue enqueues the task onto a go-job queue drained by Worker.
//   - Invoker posts the task to a secondary execution unit and does not wait
//     for it to finish.
//
// None of them retries the slow work.
package deferred
