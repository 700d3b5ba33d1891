// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSSELine_AccumulatesToolCallByIndex(t *testing.T) {
	calls := make(map[int]*accumulatedCall)
	var order []int
	var tokens int
	out := make(chan StreamEvent, 4)

	lines := []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"search"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"q\":"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"hi\"}"}}]}}]}`,
	}
	for _, l := range lines {
		require.NoError(t, handleSSELine([]byte(l), out, calls, &order, &tokens))
	}

	flushToolCalls(out, calls, order)
	close(out)

	var got []StreamEvent
	for ev := range out {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	assert.Equal(t, EventToolCall, got[0].Type)
	assert.Equal(t, "search", got[0].ToolCall.Name)
	assert.Equal(t, "call_1", got[0].ToolCall.ID)
	assert.Equal(t, "hi", got[0].ToolCall.Arguments["q"])
}

func TestFlushToolCalls_MalformedArgumentsSuppressEvent(t *testing.T) {
	calls := map[int]*accumulatedCall{
		0: {id: "call_1", name: "search"},
	}
	calls[0].args.WriteString("{not valid json")
	out := make(chan StreamEvent, 1)

	flushToolCalls(out, calls, []int{0})
	close(out)

	var got []StreamEvent
	for ev := range out {
		got = append(got, ev)
	}
	assert.Empty(t, got, "malformed arguments must suppress the tool_call event entirely")
}

func TestHandleSSELine_ContentDeltaEmitsVerbatim(t *testing.T) {
	calls := make(map[int]*accumulatedCall)
	var order []int
	var tokens int
	out := make(chan StreamEvent, 1)

	err := handleSSELine([]byte(`data: {"choices":[{"delta":{"content":"hello"}}]}`), out, calls, &order, &tokens)
	require.NoError(t, err)
	close(out)

	ev := <-out
	assert.Equal(t, EventContent, ev.Type)
	assert.Equal(t, "hello", ev.Text)
}
