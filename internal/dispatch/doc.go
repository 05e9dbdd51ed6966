// Package dispatch delivers due alarms off the orchestrator's timer path.
//
// Fire never blocks: alarms go into a bounded queue and a small worker pool
// hands them to a Notifier. Delivery is throttled by a shared rate limiter
// and retried with jittered exponential backoff. A notifier can mark an error
// permanent with NoRetry or ask for a specific delay with RetryAfter.
//
// At most one alarm per reminder is queued or in delivery at a time.
package dispatch
