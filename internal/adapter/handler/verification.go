package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/lifecycle"
)

type VerificationHandler struct {
	Machine *lifecycle.Machine
}

type ChallengeRequest struct {
	Type string `json:"type"` // SMS or PUSH
}

// IssueChallenge moves a submission into its step-up wait state. Operators
// drive this once they have routed the card with the bank.
func (h *VerificationHandler) IssueChallenge(c *fiber.Ctx) error {
	subID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid submission ID"})
	}

	var req ChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	typ := domain.VerificationType(req.Type)
	if typ != domain.VerificationSMS && typ != domain.VerificationPush {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Type must be SMS or PUSH"})
	}

	sub, err := h.Machine.IssueVerificationChallenge(c.Context(), subID, typ, "operator")
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(sub)
}

// RequestResend re-sends the SMS challenge, bounded by the resend cap and
// the cooldown window.
func (h *VerificationHandler) RequestResend(c *fiber.Ctx) error {
	subID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid submission ID"})
	}

	sub, err := h.Machine.RequestResend(c.Context(), subID)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(sub)
}

type SubmitCodeRequest struct {
	Code string `json:"code"`
}

// SubmitCode checks the customer's SMS code against the active challenge.
func (h *VerificationHandler) SubmitCode(c *fiber.Ctx) error {
	subID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid submission ID"})
	}

	var req SubmitCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if req.Code == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Code is required"})
	}

	sub, err := h.Machine.SubmitVerificationCode(c.Context(), subID, req.Code)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(sub)
}

type OperatorDecisionRequest struct {
	Approved *bool  `json:"approved,omitempty"`
	Code     string `json:"code,omitempty"`
}

// OperatorDecision lets an operator set the active challenge code, or
// approve/reject the push verification outright.
func (h *VerificationHandler) OperatorDecision(c *fiber.Ctx) error {
	subID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid submission ID"})
	}

	var req OperatorDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if req.Approved == nil && req.Code == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Provide approved or code"})
	}

	sub, err := h.Machine.OperatorVerificationDecision(c.Context(), subID, req.Approved, req.Code, "operator")
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(sub)
}
