package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TeamPay/app/models"
	"github.com/ManuelReschke/TeamPay/internal/pkg/membership"
)

func membershipResponse(m *models.Membership) fiber.Map {
	return fiber.Map{
		"id":               m.ID,
		"team_id":          m.TeamID,
		"player_name":      m.PlayerName,
		"player_email":     m.PlayerEmail,
		"status":           m.Status,
		"billing_type":     m.BillingType,
		"billing_interval": m.BillingInterval,
		"next_due_at":      formatTimePtr(m.NextDueAt),
		"last_paid_at":     formatTimePtr(m.LastPaidAt),
		"canceled_at":      formatTimePtr(m.CanceledAt),
	}
}

// HandleJoin creates a pending membership through a team's join link.
func (h *Handlers) HandleJoin(c *fiber.Ctx) error {
	var in membership.JoinInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	m, err := h.Memberships.Join(c.UserContext(), c.Params("code"), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(membershipResponse(m))
}

// HandleListMemberships lists every membership of a team.
func (h *Handlers) HandleListMemberships(c *fiber.Ctx) error {
	teamID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	list, err := h.Memberships.ListByTeam(c.UserContext(), teamID)
	if err != nil {
		return respondError(c, err)
	}

	items := make([]fiber.Map, 0, len(list))
	for i := range list {
		items = append(items, membershipResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"items": items, "total": len(items)})
}

// HandleGetMembership returns one membership with its payment ledger.
func (h *Handlers) HandleGetMembership(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	m, err := h.Memberships.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	payments, err := h.Billing.ListPayments(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}

	resp := membershipResponse(m)
	resp["payments"] = payments
	return c.JSON(resp)
}

type dueDateRequest struct {
	NextDueDate string `json:"next_due_date"`
}

// HandleSetDueDate lets a manager replace the next due date. Dates that are
// not real calendar dates or not in the future are rejected with 422.
func (h *Handlers) HandleSetDueDate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req dueDateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	m, err := h.Memberships.SetNextDueDate(c.UserContext(), id, req.NextDueDate, h.now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(membershipResponse(m))
}

// HandleCancel cancels a membership.
func (h *Handlers) HandleCancel(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	m, err := h.Memberships.Cancel(c.UserContext(), id, h.now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(membershipResponse(m))
}
