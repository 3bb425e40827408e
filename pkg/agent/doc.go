/*
Package agent runs the ReAct loop behind repository chat.

	question → model (streaming) → tool calls? → execute → feed back → loop
	                             → plain text  → done

Each iteration streams one model response. Tool call fragments are
accumulated by their provider-assigned index until the stream ends, then
executed in index order through the shell dispatcher, with results
appended to the transcript for the next iteration. Text deltas are
forwarded to the subscriber the moment they arrive.

The loop is bounded at 15 iterations; a model that never stops calling
tools gets a closing message instead of an unbounded conversation. All
failures (stream setup, mid-stream errors, tool execution) surface as a
terminal error event on the same channel, so subscribers handle one
shutdown path.

# See Also

  - pkg/shell: the tools and their function-calling schemas
  - pkg/api: the SSE endpoint that drains the event channel
*/
package agent
