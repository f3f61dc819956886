// Package web provides the HTTP handlers of the automation API: the Instagram
// webhook receiver, link tracking and flow administration.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
	"github.com/dukex/dmflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Automation is the engine surface the handlers drive.
type Automation interface {
	HandleComment(ctx context.Context, channel *models.Channel, comment models.IncomingComment) error
	HandleMessage(ctx context.Context, channel *models.Channel, message models.IncomingMessage) error
	TrackClick(ctx context.Context, flowID, nodeID, contactID, target string) error
}

// Config holds the webhook credentials.
type Config struct {
	VerifyToken string
	AppSecret   string
}

type APIHandlers struct {
	flows      *services.Flows
	automation Automation
	channels   persistence.ChannelRepository
	validator  *validator.Validate
	config     Config
	logger     *slog.Logger
}

func NewAPIHandlers(
	flows *services.Flows,
	automation Automation,
	channels persistence.ChannelRepository,
	validator *validator.Validate,
	config Config,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		flows:      flows,
		automation: automation,
		channels:   channels,
		validator:  validator,
		config:     config,
		logger:     logger.With("module", "web"),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.flows.HealthCheck(c.Context())

	status := "unhealthy"
	message := "dmflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "dmflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func workspaceID(c fiber.Ctx) string {
	return c.Get(WorkspaceHeader)
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	workspace := workspaceID(c)
	if workspace == "" {
		return badRequest(c, "Workspace ID is required")
	}

	flows, err := h.flows.List(c.Context(), workspace)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(FlowsResponse{Flows: flows, TotalCount: len(flows)})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flow, err := h.flows.Get(c.Context(), workspaceID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	workspace := workspaceID(c)
	if workspace == "" {
		return badRequest(c, "Workspace ID is required")
	}

	req, err := h.bindFlow(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.flows.Create(c.Context(), req.ToFlow(workspace))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	req, err := h.bindFlow(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	workspace := workspaceID(c)

	updated, err := h.flows.Update(c.Context(), workspace, c.Params("id"), req.ToFlow(workspace))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) bindFlow(c fiber.Ctx) (*FlowRequest, error) {
	var req FlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, errInvalidJSON
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, err
	}

	return &req, nil
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	err := h.flows.Delete(c.Context(), workspaceID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateFlow(c fiber.Ctx) error {
	return h.setActive(c, true)
}

func (h *APIHandlers) DeactivateFlow(c fiber.Ctx) error {
	return h.setActive(c, false)
}

func (h *APIHandlers) setActive(c fiber.Ctx, active bool) error {
	flow, err := h.flows.SetActive(c.Context(), workspaceID(c), c.Params("id"), active)
	if err != nil {
		return handleServiceError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Flow state changed", "flow_id", flow.ID, "active", active)

	return c.JSON(flow)
}

// GetFlowLogs returns the delivery funnel counts of a flow.
func (h *APIHandlers) GetFlowLogs(c fiber.Ctx) error {
	stats, err := h.flows.Stats(c.Context(), workspaceID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}
