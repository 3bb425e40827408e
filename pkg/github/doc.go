/*
Package github is Falcon's source-host client.

It does two small jobs: parsing repository URLs into (owner, repo), and
fetching the metadata the pipeline persists during the cloning phase: the
default branch, the tip commit of that branch, the language breakdown as
percentages, and the description. A token is optional; without one the
unauthenticated rate limits apply.

Non-success API responses surface as *types.SourceHostError so the pipeline
can treat them as retryable.
*/
package github
