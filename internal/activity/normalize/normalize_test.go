package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fieldops/internal/activity/models"
	"fieldops/internal/geo"
	"fieldops/internal/template"
	dErrors "fieldops/pkg/domain-errors"
)

type NormalizeSuite struct {
	suite.Suite
	tmpl *template.Template
}

func TestNormalizeSuite(t *testing.T) {
	suite.Run(t, new(NormalizeSuite))
}

func (s *NormalizeSuite) SetupTest() {
	s.tmpl = &template.Template{
		Name:           "site-visit",
		StatusOnCreate: "PENDING",
		CanEditRule:    template.RuleCreator,
		ScheduleSlots:  []string{"visit"},
		VenueSlots:     []string{"site"},
		Attachment: map[string]template.FieldSpec{
			"Notes":   {Type: template.FieldString},
			"Contact": {Type: template.FieldPhone},
			"Amount":  {Type: template.FieldNumber},
		},
	}
}

func (s *NormalizeSuite) TestSchedule() {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	s.Run("unknown slot rejected in strict mode", func() {
		_, err := Schedule([]models.ScheduleInput{{Name: "lunch", StartTime: &start}}, s.tmpl, Strict)
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("unknown slot dropped in lenient mode", func() {
		out, err := Schedule([]models.ScheduleInput{{Name: "lunch", StartTime: &start}}, s.tmpl, Lenient)
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Nil(out[0].StartTime)
	})

	s.Run("start after end rejected in strict mode", func() {
		_, err := Schedule([]models.ScheduleInput{
			{Name: "visit", StartTime: &end, EndTime: &start},
		}, s.tmpl, Strict)
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("start after end becomes a placeholder in lenient mode", func() {
		out, err := Schedule([]models.ScheduleInput{
			{Name: "visit", StartTime: &end, EndTime: &start},
		}, s.tmpl, Lenient)
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Equal("visit", out[0].Name)
		s.Nil(out[0].StartTime)
	})

	s.Run("first input for a slot wins", func() {
		other := start.Add(24 * time.Hour)
		out, err := Schedule([]models.ScheduleInput{
			{Name: "visit", StartTime: &start, EndTime: &end},
			{Name: "visit", StartTime: &other},
		}, s.tmpl, Strict)
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.True(out[0].StartTime.Equal(start))
	})

	s.Run("every declared slot is present in the output", func() {
		out, err := Schedule(nil, s.tmpl, Strict)
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Equal("visit", out[0].Name)
	})
}

func (s *NormalizeSuite) TestVenue() {
	s.Run("out-of-range geopoint rejected in strict mode", func() {
		_, err := Venue([]models.VenueInput{
			{Descriptor: "site", Geopoint: &geo.Point{Latitude: 91, Longitude: 0}},
		}, s.tmpl, Strict)
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("out-of-range geopoint becomes a placeholder in lenient mode", func() {
		out, err := Venue([]models.VenueInput{
			{Descriptor: "site", Address: "1 Main St", Geopoint: &geo.Point{Latitude: 91, Longitude: 0}},
		}, s.tmpl, Lenient)
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Empty(out[0].Address)
		s.Nil(out[0].Geopoint)
	})

	s.Run("address carries through", func() {
		out, err := Venue([]models.VenueInput{
			{Descriptor: "site", Address: "1 Main St", Location: "HQ"},
		}, s.tmpl, Strict)
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Equal("1 Main St", out[0].Address)
		s.Equal("HQ", out[0].Location)
	})
}

func (s *NormalizeSuite) TestAttachment() {
	raw := func(pairs map[string]string) map[string]json.RawMessage {
		out := make(map[string]json.RawMessage, len(pairs))
		for k, v := range pairs {
			out[k] = json.RawMessage(v)
		}
		return out
	}

	s.Run("unknown key rejected in strict mode", func() {
		_, err := Attachment(raw(map[string]string{"Bogus": `"x"`}), s.tmpl, Strict)
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("unknown key dropped in lenient mode", func() {
		out, err := Attachment(raw(map[string]string{"Bogus": `"x"`}), s.tmpl, Lenient)
		s.Require().NoError(err)
		s.NotContains(out, "Bogus")
		s.Len(out, 3)
	})

	s.Run("missing fields become empty values of the declared type", func() {
		out, err := Attachment(nil, s.tmpl, Strict)
		s.Require().NoError(err)
		s.Equal(template.FieldPhone, out["Contact"].Type)
		s.True(out["Contact"].Empty())
	})

	s.Run("bare numbers keep their textual form", func() {
		out, err := Attachment(raw(map[string]string{"Amount": `120.50`}), s.tmpl, Strict)
		s.Require().NoError(err)
		s.Equal("120.50", out["Amount"].Text)
	})

	s.Run("wrapped values unwrap", func() {
		out, err := Attachment(raw(map[string]string{"Notes": `{"value":"ok"}`}), s.tmpl, Strict)
		s.Require().NoError(err)
		s.Equal("ok", out["Notes"].Text)
	})

	s.Run("undecodable value rejected in strict mode", func() {
		_, err := Attachment(raw(map[string]string{"Notes": `[1,2]`}), s.tmpl, Strict)
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("undecodable value becomes empty in lenient mode", func() {
		out, err := Attachment(raw(map[string]string{"Notes": `[1,2]`}), s.tmpl, Lenient)
		s.Require().NoError(err)
		s.True(out["Notes"].Empty())
	})
}

func (s *NormalizeSuite) TestActivity() {
	req := &models.CreateRequest{
		Template: "site-visit",
		Office:   "o1",
		Share:    []string{"+15550002", "+15550001"},
	}
	draft, err := Activity(req, s.tmpl, Strict)
	s.Require().NoError(err)
	s.Equal("site-visit", draft.Template)
	s.Equal(models.StatusPending, draft.Status)
	s.Equal(template.RuleCreator, draft.CanEditRule)
	s.Equal([]string{"+15550001", "+15550002"}, draft.Assignees)
	s.Len(draft.Schedule, 1)
	s.Len(draft.Venue, 1)
}

func (s *NormalizeSuite) TestGeopoint() {
	s.Error(Geopoint(&geo.Point{Latitude: 100}, Strict))
	s.NoError(Geopoint(&geo.Point{Latitude: 100}, Lenient))
	s.NoError(Geopoint(nil, Strict))
}
