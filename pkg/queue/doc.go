// Package queue runs the durable job orchestrator.
//
// The orchestrator polls the jobs table, claims work with a single atomic
// UPDATE so that concurrent workers never run the same job twice, and hands
// each claimed job to the wiki pipeline. Failed attempts are requeued until
// max_attempts is exhausted, at which point the job and its wiki are marked
// failed together and subscribers are notified. Jobs orphaned by a crashed
// worker are recovered back to queued on startup.
package queue
