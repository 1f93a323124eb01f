// internal/app/lifecycle/input.go
package lifecycle

import (
	"time"

	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/inputval"
	"github.com/maishoras/maishoras/internal/app/system/normalize"
	"github.com/maishoras/maishoras/internal/domain/models"
)

const dateLayout = "2006-01-02"

// ActivityInput is the body of a create request. Field order is the order
// constraints are reported in.
type ActivityInput struct {
	Title           string `json:"title" validate:"notblank,max=40"`
	Description     string `json:"description" validate:"notblank,max=1500"`
	Location        string `json:"location" validate:"notblank,max=50"`
	Date            string `json:"date" validate:"required,ymd"`
	StartTime       string `json:"startTime" validate:"required,hhmm"`
	EndTime         string `json:"endTime" validate:"required,hhmm"`
	WorkloadHours   int    `json:"workloadHours" validate:"gt=0"`
	MinParticipants int    `json:"minParticipants" validate:"gte=1"`
	MaxParticipants int    `json:"maxParticipants" validate:"gte=1"`
}

// ActivityPatch is the body of an edit request. Nil fields are left alone.
type ActivityPatch struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	Location        *string `json:"location,omitempty"`
	Date            *string `json:"date,omitempty"`
	StartTime       *string `json:"startTime,omitempty"`
	EndTime         *string `json:"endTime,omitempty"`
	WorkloadHours   *int    `json:"workloadHours,omitempty"`
	MinParticipants *int    `json:"minParticipants,omitempty"`
	MaxParticipants *int    `json:"maxParticipants,omitempty"`
}

// normalized returns a copy with free text stripped of markup, trimmed and
// capitalized.
func (in ActivityInput) normalized() ActivityInput {
	in.Title = normalize.Text(in.Title)
	in.Description = normalize.Text(in.Description)
	in.Location = normalize.Text(in.Location)
	in.Date = normalize.QueryParam(in.Date)
	in.StartTime = normalize.QueryParam(in.StartTime)
	in.EndTime = normalize.QueryParam(in.EndTime)
	return in
}

// inputOf is the editable view of a stored activity.
func inputOf(a models.Activity) ActivityInput {
	return ActivityInput{
		Title:           a.Title,
		Description:     a.Description,
		Location:        a.Location,
		Date:            a.DateString(),
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		WorkloadHours:   a.WorkloadHours,
		MinParticipants: a.MinParticipants,
		MaxParticipants: a.MaxParticipants,
	}
}

// validate reports the first violated constraint. today is the current
// calendar day (UTC midnight); the date check is skipped when checkDate is
// false so unrelated edits of an activity dated today still pass tomorrow.
func (in ActivityInput) validate(today time.Time, checkDate bool) error {
	if err := inputval.Validate(in).Err(); err != nil {
		return err
	}
	// HH:MM compares lexically.
	if in.StartTime >= in.EndTime {
		return apperr.Validation("endTime", "endTime must be after startTime.")
	}
	if checkDate {
		day, _ := time.Parse(dateLayout, in.Date)
		if day.Before(today) {
			return apperr.Validation("date", "date cannot be in the past.")
		}
	}
	if in.MaxParticipants < in.MinParticipants {
		return apperr.Validation("maxParticipants", "maxParticipants must be at least minParticipants.")
	}
	return nil
}

// day parses a validated date into its UTC-midnight form.
func (in ActivityInput) day() time.Time {
	d, _ := time.Parse(dateLayout, in.Date)
	return d
}
