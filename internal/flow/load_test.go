package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validFlowJSON = `{
	"id": "order-status",
	"name": "Order Status Lookup",
	"version": 1,
	"settings": {"timeoutMinutes": 15, "maxIterations": 50},
	"nodes": [
		{"id": "start", "kind": "start"},
		{"id": "ask-order", "kind": "question", "question": {
			"prompt": "What is your order number?",
			"inputType": "text",
			"bindToVariable": "order_id",
			"next": "lookup"
		}},
		{"id": "lookup", "kind": "integration", "integration": {
			"method": "GET",
			"urlTemplate": "https://api.example.com/orders/{{order_id}}",
			"responseMapping": {"status": "order_status"},
			"errorPolicy": "fallback_to_human",
			"next": "reply"
		}},
		{"id": "reply", "kind": "message", "message": {
			"text": "Your order is {{order_status}}",
			"next": "done"
		}},
		{"id": "done", "kind": "end", "end": {"success": true}}
	],
	"edges": [
		{"from": "start", "to": "ask-order"},
		{"from": "ask-order", "to": "lookup"},
		{"from": "lookup", "to": "reply"},
		{"from": "reply", "to": "done"}
	]
}`

func TestParseJSONValidFlow(t *testing.T) {
	f, err := ParseJSON([]byte(validFlowJSON))
	require.NoError(t, err)
	require.NotNil(t, f)

	assert.Equal(t, "order-status", f.ID)
	assert.Equal(t, 15, f.Settings.TimeoutMinutes)
	assert.Equal(t, 50, f.Settings.MaxIterations)
	assert.Len(t, f.Nodes, 5)
	assert.Len(t, f.Edges, 4)

	n, ok := f.NodeByID("lookup")
	require.True(t, ok)
	require.NotNil(t, n.Integration)
	assert.Equal(t, "GET", n.Integration.Method)
	assert.Equal(t, "order_status", n.Integration.ResponseMapping["status"])

	r := f.Validate()
	assert.True(t, r.IsValid, "expected valid flow, errors=%v", r.Errors)
}

func TestParseJSONMissingRequiredField(t *testing.T) {
	_, err := ParseJSON([]byte(`{"name": "no id", "nodes": [{"id": "start", "kind": "start"}]}`))
	assert.Error(t, err)
}

func TestParseJSONUnknownKindRejected(t *testing.T) {
	_, err := ParseJSON([]byte(`{
		"id": "f", "name": "f",
		"nodes": [{"id": "n1", "kind": "mystery"}]
	}`))
	assert.Error(t, err)
}

func TestParseJSONNodeMissingMatchingConfig(t *testing.T) {
	_, err := ParseJSON([]byte(`{
		"id": "f", "name": "f",
		"nodes": [
			{"id": "start", "kind": "start"},
			{"id": "m1", "kind": "message"}
		]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message\" config")
}

func TestParseJSONMalformedBody(t *testing.T) {
	_, err := ParseJSON([]byte(`not json`))
	assert.Error(t, err)
}
