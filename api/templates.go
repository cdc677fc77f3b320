/*
templates.go - Pre-built leave policy templates

PURPOSE:
  Provides ready-to-use entitlement configurations for common leave
  types, and the instantiation step that turns a template into one
  user's PolicySetting (optionally with per-user overrides).

AVAILABLE TEMPLATES:
  annual-standard:  1.25 days/month, cap 30, carry over up to 10
  annual-senior:    2.5 days/month, cap 45, carry over up to 15
  sick-standard:    1 day/month, cap 15, no carry-over
  parental-fixed:   FIXED grant managed by administrators

CUSTOMIZATION:
  Templates are starting points. AssignTemplateRequest can override the
  accrual amount and caps per user; anything richer is an administrator
  workflow outside this engine.

SEE ALSO:
  - handlers.go: AssignTemplate endpoint
  - leave/types.go: PolicySetting
*/
package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/leave"
)

// PolicyTemplate is the reusable shape a setting is instantiated from.
type PolicyTemplate struct {
	ID             leave.TemplateID
	Name           string
	AccrualType    leave.AccrualType
	Frequency      *leave.Frequency
	AccrualAmount  *decimal.Decimal
	MaxCap         decimal.Decimal
	AllowCarryOver bool
	MaxCarryOver   decimal.Decimal
}

// BuiltinTemplates returns the standard set, keyed by ID.
func BuiltinTemplates() map[leave.TemplateID]PolicyTemplate {
	monthly := leave.FreqMonthly
	std := decimal.RequireFromString("1.25")
	senior := decimal.RequireFromString("2.5")
	one := decimal.NewFromInt(1)

	templates := []PolicyTemplate{
		{
			ID:             "annual-standard",
			Name:           "Annual Leave",
			AccrualType:    leave.AccrualTypeAccrual,
			Frequency:      &monthly,
			AccrualAmount:  &std,
			MaxCap:         decimal.NewFromInt(30),
			AllowCarryOver: true,
			MaxCarryOver:   decimal.NewFromInt(10),
		},
		{
			ID:             "annual-senior",
			Name:           "Annual Leave (Senior)",
			AccrualType:    leave.AccrualTypeAccrual,
			Frequency:      &monthly,
			AccrualAmount:  &senior,
			MaxCap:         decimal.NewFromInt(45),
			AllowCarryOver: true,
			MaxCarryOver:   decimal.NewFromInt(15),
		},
		{
			ID:            "sick-standard",
			Name:          "Sick Leave",
			AccrualType:   leave.AccrualTypeAccrual,
			Frequency:     &monthly,
			AccrualAmount: &one,
			MaxCap:        decimal.NewFromInt(15),
			// Sick leave typically doesn't roll over.
			AllowCarryOver: false,
			MaxCarryOver:   decimal.Zero,
		},
		{
			ID:             "parental-fixed",
			Name:           "Parental Leave",
			AccrualType:    leave.AccrualTypeFixed,
			MaxCap:         decimal.NewFromInt(90),
			AllowCarryOver: false,
			MaxCarryOver:   decimal.Zero,
		},
	}

	byID := make(map[leave.TemplateID]PolicyTemplate, len(templates))
	for _, t := range templates {
		byID[t.ID] = t
	}
	return byID
}

// Instantiate creates a PolicySetting for a user from the template.
// Overrides are applied before validation.
func (t PolicyTemplate) Instantiate(userID leave.UserID, startDate time.Time, req AssignTemplateRequest) (leave.PolicySetting, error) {
	setting := leave.PolicySetting{
		ID:             leave.SettingID(uuid.NewString()),
		UserID:         userID,
		TemplateID:     t.ID,
		LeaveType:      t.Name,
		StartDate:      startDate,
		AccrualType:    t.AccrualType,
		MaxCap:         t.MaxCap,
		AllowCarryOver: t.AllowCarryOver,
		MaxCarryOver:   t.MaxCarryOver,
		CurrentBalance: decimal.Zero,
		CarriedOver:    decimal.Zero,
	}
	if t.Frequency != nil {
		f := *t.Frequency
		setting.Frequency = &f
	}
	if t.AccrualAmount != nil {
		a := *t.AccrualAmount
		setting.AccrualAmount = &a
	}

	if req.AccrualAmount != nil {
		d, err := decimal.NewFromString(*req.AccrualAmount)
		if err != nil {
			return leave.PolicySetting{}, fmt.Errorf("bad accrual_amount override: %w", err)
		}
		setting.AccrualAmount = &d
	}
	if req.MaxCap != nil {
		d, err := decimal.NewFromString(*req.MaxCap)
		if err != nil {
			return leave.PolicySetting{}, fmt.Errorf("bad max_cap override: %w", err)
		}
		setting.MaxCap = d
	}
	if req.MaxCarryOver != nil {
		d, err := decimal.NewFromString(*req.MaxCarryOver)
		if err != nil {
			return leave.PolicySetting{}, fmt.Errorf("bad max_carry_over override: %w", err)
		}
		setting.MaxCarryOver = d
	}

	if err := setting.Validate(); err != nil {
		return leave.PolicySetting{}, err
	}
	return setting, nil
}

func toTemplateDTO(t PolicyTemplate) TemplateDTO {
	dto := TemplateDTO{
		ID:             string(t.ID),
		Name:           t.Name,
		AccrualType:    string(t.AccrualType),
		MaxCap:         t.MaxCap.String(),
		AllowCarryOver: t.AllowCarryOver,
		MaxCarryOver:   t.MaxCarryOver.String(),
	}
	if t.Frequency != nil {
		f := string(*t.Frequency)
		dto.Frequency = &f
	}
	if t.AccrualAmount != nil {
		a := t.AccrualAmount.String()
		dto.AccrualAmount = &a
	}
	return dto
}
