// Package service implements the transactional operations behind the HTTP
// surface.
//
// WikiService enrolls wikis with their generation jobs, answers progress
// queries, and serves the artifacts the pipeline wrote to wiki storage
// (manifest, rendered pages). ChatService runs one question/answer turn
// against a wiki: it persists the conversation, selects context pages from
// the manifest with the lexical ranker, and streams the model's answer as
// chat frames the API layer forwards over SSE.
package service
