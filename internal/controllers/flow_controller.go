package controllers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"

	"github.com/dynamatics/dynamatics/internal/storage"
	"github.com/dynamatics/dynamatics/pkg/dataflow"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

// FlowController exposes flow definition CRUD plus the execution and
// schema-propagation endpoints over the embedded dataflow engine.
type FlowController struct {
	flows   *storage.FlowRepository
	runner  *dataflow.Runner
	schemas *dataflow.SchemaPropagator
}

type FlowControllerDependencies struct {
	FlowRepository   *storage.FlowRepository
	Runner           *dataflow.Runner
	SchemaPropagator *dataflow.SchemaPropagator
}

func NewFlowController(deps FlowControllerDependencies) *FlowController {
	return &FlowController{
		flows:   deps.FlowRepository,
		runner:  deps.Runner,
		schemas: deps.SchemaPropagator,
	}
}

type createFlowRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Graph       dataflow.GraphSpec `json:"graph"`
}

type executeFlowRequest struct {
	FlowGraph *dataflow.GraphSpec `json:"flow_graph"`
}

func successResponse(data any) fiber.Map {
	return fiber.Map{"status": "success", "data": data}
}

func errorResponse(message string) fiber.Map {
	return fiber.Map{"status": "error", "message": message}
}

func (c *FlowController) CreateFlow(ctx fiber.Ctx) error {
	var req createFlowRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if _, err := dataflow.ParseGraph(req.Graph); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse(err.Error()))
	}

	flow, err := c.flows.Create(ctx.RequestCtx(), storage.Flow{
		Name:        req.Name,
		Description: req.Description,
		Graph:       req.Graph,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create flow")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to create flow")
	}

	return ctx.JSON(successResponse(flow))
}

func (c *FlowController) GetAllFlows(ctx fiber.Ctx) error {
	flows, err := c.flows.List(ctx.RequestCtx())
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch flows")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch flows")
	}
	return ctx.JSON(successResponse(flows))
}

func (c *FlowController) GetFlow(ctx fiber.Ctx) error {
	flow, err := c.flows.Get(ctx.RequestCtx(), ctx.Params("flowID"))
	if errors.Is(err, storage.ErrFlowNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(errorResponse("Flow not found"))
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch flow")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch flow")
	}
	return ctx.JSON(successResponse(flow))
}

func (c *FlowController) UpdateFlow(ctx fiber.Ctx) error {
	var req createFlowRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if _, err := dataflow.ParseGraph(req.Graph); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse(err.Error()))
	}

	flow, err := c.flows.Update(ctx.RequestCtx(), storage.Flow{
		ID:          ctx.Params("flowID"),
		Name:        req.Name,
		Description: req.Description,
		Graph:       req.Graph,
	})
	if errors.Is(err, storage.ErrFlowNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(errorResponse("Flow not found"))
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to update flow")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to update flow")
	}

	return ctx.JSON(successResponse(flow))
}

func (c *FlowController) DeleteFlow(ctx fiber.Ctx) error {
	err := c.flows.Delete(ctx.RequestCtx(), ctx.Params("flowID"))
	if errors.Is(err, storage.ErrFlowNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(errorResponse("Flow not found"))
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete flow")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to delete flow")
	}
	return ctx.JSON(fiber.Map{"status": "success", "message": "Flow deleted"})
}

// ExecuteFlow runs an inline graph. With ?stream=true the response is
// line-delimited JSON, one event per completed node; otherwise events are
// buffered into a single envelope.
func (c *FlowController) ExecuteFlow(ctx fiber.Ctx) error {
	var req executeFlowRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.FlowGraph == nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse("Flow graph is empty"))
	}

	return c.executeGraph(ctx, *req.FlowGraph)
}

// ExecuteStoredFlow loads a saved flow by id and runs it.
func (c *FlowController) ExecuteStoredFlow(ctx fiber.Ctx) error {
	flow, err := c.flows.Get(ctx.RequestCtx(), ctx.Params("flowID"))
	if errors.Is(err, storage.ErrFlowNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(errorResponse("Flow not found"))
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch flow")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch flow")
	}

	return c.executeGraph(ctx, flow.Graph)
}

func (c *FlowController) executeGraph(ctx fiber.Ctx, spec dataflow.GraphSpec) error {
	graph, err := dataflow.ParseGraph(spec)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse(err.Error()))
	}

	if ctx.Query("stream") == "true" {
		return c.streamExecution(ctx, graph)
	}

	events, err := c.runner.ExecuteAll(ctx.RequestCtx(), graph)
	if err != nil {
		// Only structural failures reach here; per-node errors ride on
		// their events.
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse(err.Error()))
	}
	return ctx.JSON(successResponse(events))
}

func (c *FlowController) streamExecution(ctx fiber.Ctx, graph *dataflow.Graph) error {
	runCtx, cancel := context.WithCancel(context.Background())

	events, err := c.runner.Execute(runCtx, graph)
	if err != nil {
		cancel()
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse(err.Error()))
	}

	ctx.Set(fiber.HeaderContentType, "application/x-ndjson")
	ctx.RequestCtx().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		encoder := json.NewEncoder(w)
		for event := range events {
			if err := encoder.Encode(event); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				// Client went away; stop consuming so the run is cancelled.
				return
			}
		}
	}))

	return nil
}

// FlowSchema propagates column schemas through the graph without running
// it and streams one {node_id, allowed_fields} line per node.
func (c *FlowController) FlowSchema(ctx fiber.Ctx) error {
	var req executeFlowRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.FlowGraph == nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse("Flow graph is empty"))
	}

	graph, err := dataflow.ParseGraph(*req.FlowGraph)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse(err.Error()))
	}

	allowed, err := c.schemas.AllowedFields(graph)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse(err.Error()))
	}

	type nodeFields struct {
		NodeID        string          `json:"node_id"`
		AllowedFields dataflow.Schema `json:"allowed_fields"`
	}

	ctx.Set(fiber.HeaderContentType, "application/x-ndjson")
	var buf []byte
	for _, nodeID := range graph.NodeIDs() {
		line, err := json.Marshal(nodeFields{NodeID: nodeID, AllowedFields: allowed[nodeID]})
		if err != nil {
			continue
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return ctx.Send(buf)
}
