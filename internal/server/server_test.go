package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dynamatics/dynamatics/internal/controllers"
	"github.com/dynamatics/dynamatics/pkg/dataflow"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer() *fiber.App {
	fixtures := dataflow.NewFixtureStore()

	flowController := controllers.NewFlowController(controllers.FlowControllerDependencies{
		Runner:           dataflow.NewRunner(dataflow.RunnerDependencies{Fixtures: fixtures}),
		SchemaPropagator: dataflow.NewSchemaPropagator(dataflow.SchemaPropagatorDependencies{Fixtures: fixtures}),
	})

	return NewHTTPServer(HTTPServerDependencies{FlowController: flowController})
}

func TestHealthEndpoint(t *testing.T) {
	resp, err := testServer().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "dynamatics-backend", body["service"])
	assert.NotEmpty(t, body["version"])
}

func executePayload(t *testing.T) *bytes.Buffer {
	t.Helper()
	payload := map[string]any{
		"flow_graph": map[string]any{
			"nodes": []any{
				map[string]any{"id": "src", "type": "datasource", "config": map[string]any{
					"input": []any{
						map[string]any{"n": 1}, map[string]any{"n": 2}, map[string]any{"n": 3},
					},
				}},
				map[string]any{"id": "f", "type": "filter", "config": map[string]any{
					"field": "n", "condition": "gte", "value": 2,
				}},
			},
			"edges": []any{
				map[string]any{"source": "src", "target": "f"},
			},
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewBuffer(raw)
}

func TestExecuteFlowBuffered(t *testing.T) {
	req := httptest.NewRequest("POST", "/flows/execute", executePayload(t))
	req.Header.Set("Content-Type", "application/json")

	resp, err := testServer().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Status string           `json:"status"`
		Data   []dataflow.Event `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "success", body.Status)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "src", body.Data[0].NodeID)
	assert.Len(t, body.Data[0].Output, 3)
	assert.Equal(t, "f", body.Data[1].NodeID)
	assert.Len(t, body.Data[1].Output, 2)
}

func TestExecuteFlowStreaming(t *testing.T) {
	req := httptest.NewRequest("POST", "/flows/execute?stream=true", executePayload(t))
	req.Header.Set("Content-Type", "application/json")

	resp, err := testServer().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []dataflow.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event dataflow.Event
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		events = append(events, event)
	}

	require.Len(t, events, 2)
	assert.Equal(t, "src", events[0].NodeID)
	assert.Equal(t, "f", events[1].NodeID)
}

func TestExecuteFlowRejectsBadGraph(t *testing.T) {
	payload := `{"flow_graph": {"nodes": [{"id": "a", "type": "filter"}], "edges": [{"source": "a", "target": "ghost"}]}}`
	req := httptest.NewRequest("POST", "/flows/execute", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := testServer().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "unknown target node")
}

func TestExecuteFlowRejectsEmptyGraph(t *testing.T) {
	req := httptest.NewRequest("POST", "/flows/execute", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := testServer().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestFlowSchemaEndpoint(t *testing.T) {
	req := httptest.NewRequest("POST", "/flows/schema", executePayload(t))
	req.Header.Set("Content-Type", "application/json")

	resp, err := testServer().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	type nodeFields struct {
		NodeID        string          `json:"node_id"`
		AllowedFields dataflow.Schema `json:"allowed_fields"`
	}

	var lines []nodeFields
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var parsed nodeFields
		require.NoError(t, json.Unmarshal([]byte(line), &parsed))
		lines = append(lines, parsed)
	}

	require.Len(t, lines, 2)
	assert.Equal(t, "src", lines[0].NodeID)
	assert.Empty(t, lines[0].AllowedFields)
	assert.Equal(t, "f", lines[1].NodeID)
	assert.Equal(t, dataflow.Schema{"n": dataflow.ColumnTypeInt}, lines[1].AllowedFields)
}
