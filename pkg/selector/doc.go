// Package selector picks which wiki pages to surface as context for a chat
// question. It scores every manifest page with a lexical overlap heuristic
// (title and summary token overlap, key exports named in the question, source
// files whose stem contains a question term) and returns the top slugs.
package selector
