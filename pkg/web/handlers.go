// Package web provides HTTP handlers and REST API endpoints for flows, documents and executions.
package web

import (
	"net/http"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/engine"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/flow"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	flowService      *services.Flow
	documentService  *services.Document
	executionService *services.Execution
	validator        *validator.Validate
}

func NewAPIHandlers(
	flowService *services.Flow,
	documentService *services.Document,
	executionService *services.Execution,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		flowService:      flowService,
		documentService:  documentService,
		executionService: executionService,
		validator:        validator,
	}
}

// Register mounts every endpoint on the router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/flow-types", h.GetFlowTypes)
	router.Get("/flow-types/:kind", h.GetFlowType)

	flows := router.Group("/flows")
	flows.Get("/", h.GetFlows)
	flows.Post("/", h.CreateFlow)
	flows.Get("/:id", h.GetFlow)
	flows.Put("/:id", h.UpdateFlow)
	flows.Patch("/:id", h.PatchFlow)
	flows.Delete("/:id", h.DeleteFlow)
	flows.Post("/:id/validate", h.ValidateFlow)

	documents := router.Group("/documents")
	documents.Put("/:id", h.PutDocument)
	documents.Get("/:id", h.GetDocument)
	documents.Get("/:id/executions", h.GetDocumentExecutions)

	executions := router.Group("/executions")
	executions.Post("/", h.StartExecution)
	executions.Get("/:id", h.GetExecution)
	executions.Post("/:id/advance", h.AdvanceExecution)
	executions.Post("/:id/terminate", h.TerminateExecution)
	executions.Post("/:id/cancel", h.CancelExecution)
	executions.Post("/:id/integration-result", h.IntegrationResult)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Composer API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Composer API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"persistence": repositoryCheck,
		},
	})
}

func (h *APIHandlers) GetFlowTypes(c fiber.Ctx) error {
	return c.JSON(flow.AllNodeMetadata())
}

// GetFlowType returns the schema of one node kind along with its JSON Schema rendering.
func (h *APIHandlers) GetFlowType(c fiber.Ctx) error {
	schema, err := flow.NodeMetadata(models.NodeKind(c.Params("kind")))
	if err != nil {
		return notFound(c, "flow_type_not_found", err.Error())
	}

	return c.JSON(fiber.Map{
		"schema":      schema,
		"json_schema": schema.JSONSchema(),
	})
}

// GetFlows lists every flow, or only the candidates of a document when
// documentId is given.
func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	documentID := c.Query("documentId")

	var (
		definitions []*models.FlowDefinition
		err         error
	)

	if documentID != "" {
		definitions, err = h.flowService.Candidates(c.Context(), documentID)
	} else {
		definitions, err = h.flowService.List(c.Context())
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definitions)
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	definition, err := h.flowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var definition models.FlowDefinition

	if err := c.Bind().JSON(&definition); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	created, err := h.flowService.Create(c.Context(), &definition, c.Get(ActorHeader))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	var definition models.FlowDefinition

	if err := c.Bind().JSON(&definition); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	updated, err := h.flowService.Update(c.Context(), c.Params("id"), &definition, c.Get(ActorHeader))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) PatchFlow(c fiber.Ctx) error {
	var patch services.FlowPatch

	if err := c.Bind().JSON(&patch); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	updated, err := h.flowService.Patch(c.Context(), c.Params("id"), patch, c.Get(ActorHeader))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	if err := h.flowService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ValidateFlow(c fiber.Ctx) error {
	result, err := h.flowService.Validate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// PutDocument creates or replaces a document. The path id wins over the body.
func (h *APIHandlers) PutDocument(c fiber.Ctx) error {
	var doc models.Document

	if err := c.Bind().JSON(&doc); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	doc.ID = c.Params("id")

	saved, err := h.documentService.Put(c.Context(), &doc)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(saved)
}

func (h *APIHandlers) GetDocument(c fiber.Ctx) error {
	doc, err := h.documentService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(doc)
}

func (h *APIHandlers) GetDocumentExecutions(c fiber.Ctx) error {
	executions, err := h.executionService.ListByDocument(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executionService.Start(c.Context(), req.DocumentID, req.FlowID, req.Actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	detail, err := h.executionService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) AdvanceExecution(c fiber.Ctx) error {
	var req AdvanceRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executionService.Advance(c.Context(), c.Params("id"), req.FromNodeID, req.Actor, req.ActionParams)

	return h.transitionResponse(c, execution, err)
}

func (h *APIHandlers) TerminateExecution(c fiber.Ctx) error {
	var req TerminateRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executionService.Terminate(c.Context(), c.Params("id"), req.EndNodeID, req.Actor)

	return h.transitionResponse(c, execution, err)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	var req CancelRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executionService.Cancel(c.Context(), c.Params("id"), req.Actor)

	return h.transitionResponse(c, execution, err)
}

func (h *APIHandlers) IntegrationResult(c fiber.Ctx) error {
	var req IntegrationResultRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	actor := req.Actor
	if actor == "" {
		actor = engine.SystemActor
	}

	result := engine.IntegrationResult{
		Status: engine.IntegrationStatus(req.Status),
		Error:  req.Error,
		Output: req.Output,
	}

	execution, err := h.executionService.CompleteIntegration(c.Context(), c.Params("id"), req.NodeID, result, actor)

	return h.transitionResponse(c, execution, err)
}

// transitionResponse renders the outcome of a transition. A transition that
// failed the execution was still committed, so the failed execution is
// returned alongside the problem.
func (h *APIHandlers) transitionResponse(c fiber.Ctx, execution *models.FlowExecution, err error) error {
	if err == nil {
		return c.JSON(execution)
	}

	if execution != nil && engine.IsFatal(err) {
		return failedTransition(c, execution, err)
	}

	return handleServiceError(c, err)
}
