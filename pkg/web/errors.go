package web

import (
	"errors"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/engine"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// executionProblem carries the committed execution of a transition that
// failed it alongside the problem details.
type executionProblem struct {
	*problems.DefaultProblem

	Execution *models.FlowExecution `json:"execution"`
}

func failedTransition(c fiber.Ctx, execution *models.FlowExecution, err error) error {
	problem := executionProblem{
		DefaultProblem: problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType(problemType(err)).
			WithDetail(err.Error()),
		Execution: execution,
	}

	return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)
}

// problemType names the recoverable and fatal engine outcomes so clients can
// tell which input is missing.
func problemType(err error) string {
	switch {
	case errors.Is(err, engine.ErrPendingApproval):
		return "pending_approval"
	case errors.Is(err, engine.ErrUnresolvedBranch):
		return "unresolved_branch"
	case errors.Is(err, engine.ErrIntegrationPending):
		return "integration_pending"
	case errors.Is(err, engine.ErrStaleTransition):
		return "stale_transition"
	case errors.Is(err, engine.ErrExecutionTerminal):
		return "execution_terminal"
	case errors.Is(err, persistence.ErrActiveExecutionExists):
		return "active_execution_exists"
	case errors.Is(err, services.ErrFlowLocked):
		return "flow_locked"
	case errors.Is(err, persistence.ErrFlowCodeTaken):
		return "flow_code_taken"
	case errors.Is(err, engine.ErrNoStartNode):
		return "no_start_node"
	case errors.Is(err, services.ErrFlowInvalid):
		return "flow_invalid"
	case engine.IsFatal(err):
		return "flow_definition_error"
	default:
		return "unprocessable"
	}
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case persistence.IsFlowNotFound(err):
		return notFound(c, "flow_not_found", "flow not found")

	case persistence.IsDocumentNotFound(err):
		return notFound(c, "document_not_found", "document not found")

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution_not_found", "execution not found")

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType(problemType(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case services.IsUnprocessableError(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType(problemType(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
