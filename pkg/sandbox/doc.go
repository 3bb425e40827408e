/*
Package sandbox acquires ephemeral working directories holding a shallow
clone of the repository under generation.

Two controllers implement the same contract. Local clones into a scoped temp
directory with the external git client and is the default. Remote provisions
a sandbox on a Daytona-compatible provider over REST and clones inside it,
keeping untrusted repository content off the host.

Both guarantee the same failure shape: a failed clone removes whatever was
partially created and returns *types.AcquisitionError carrying the clone's
stderr. Destroy is tolerant: releasing an already-gone sandbox is a no-op,
and provider-side destroy failures are logged rather than returned, since
the pipeline outcome no longer depends on them.

The pipeline must pair every Create with a Destroy on all exit paths,
including cancellation.
*/
package sandbox
