package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TeamPay/app/models"
	"github.com/ManuelReschke/TeamPay/internal/pkg/schedule"
)

type scheduleRequest struct {
	BillingInterval      string `json:"billing_interval"`
	AnchorWeekday        *int   `json:"anchor_weekday"`
	AnchorDayOfMonth     *int   `json:"anchor_day_of_month"`
	AnchorMonthInQuarter *int   `json:"anchor_month_in_quarter"`
}

func (r scheduleRequest) parse() (schedule.Interval, schedule.Anchor, error) {
	interval, err := schedule.ParseInterval(r.BillingInterval)
	if err != nil {
		return "", schedule.Anchor{}, err
	}
	anchor := schedule.Anchor{
		Weekday:        r.AnchorWeekday,
		DayOfMonth:     r.AnchorDayOfMonth,
		MonthInQuarter: r.AnchorMonthInQuarter,
	}
	return interval, anchor, anchor.Validate(interval)
}

type createTeamRequest struct {
	scheduleRequest
	Name        string `json:"name"`
	Currency    string `json:"currency"`
	AmountMinor int64  `json:"amount_minor"`
}

func isAnchorError(err error) bool {
	return errors.Is(err, schedule.ErrInvalidAnchor) || errors.Is(err, schedule.ErrMissingAnchorField)
}

func invalidSchedule(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"error":   "invalid_schedule",
		"message": err.Error(),
	})
}

func teamResponse(t *models.Team) fiber.Map {
	return fiber.Map{
		"id":                      t.ID,
		"name":                    t.Name,
		"currency":                t.Currency,
		"amount_minor":            t.AmountMinor,
		"billing_interval":        t.BillingInterval,
		"anchor_weekday":          t.AnchorWeekday,
		"anchor_day_of_month":     t.AnchorDayOfMonth,
		"anchor_month_in_quarter": t.AnchorMonthInQuarter,
		"join_code":               t.JoinCode,
		"join_path":               t.JoinPath(),
	}
}

// HandleCreateTeam creates a team. The billing anchor must be complete for the
// chosen interval, otherwise the team is rejected.
func (h *Handlers) HandleCreateTeam(c *fiber.Ctx) error {
	var req createTeamRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Currency == "" {
		req.Currency = "EUR"
	}

	interval, anchor, err := req.parse()
	if err != nil {
		return invalidSchedule(c, err)
	}
	team, err := models.NewTeam(req.Name, req.Currency, req.AmountMinor, interval, anchor)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Teams.Create(team); err != nil {
		return respondError(c, err)
	}

	log.Infof("[API] Team %d created (%s)", team.ID, team.BillingInterval)
	return c.Status(fiber.StatusCreated).JSON(teamResponse(team))
}

// HandleGetTeam returns one team.
func (h *Handlers) HandleGetTeam(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	team, err := h.Teams.GetByID(id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(teamResponse(team))
}

// HandleUpdateSchedule replaces the interval and anchor of a team. Open
// memberships move to the new interval together with the team.
func (h *Handlers) HandleUpdateSchedule(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	interval, anchor, err := req.parse()
	if err != nil {
		return invalidSchedule(c, err)
	}

	team, err := h.Teams.GetByID(id)
	if err != nil {
		return respondError(c, err)
	}
	if err := team.SetSchedule(interval, anchor); err != nil {
		if isAnchorError(err) {
			return invalidSchedule(c, err)
		}
		return respondError(c, err)
	}
	if err := h.Teams.UpdateSchedule(team); err != nil {
		return respondError(c, err)
	}
	return c.JSON(teamResponse(team))
}
