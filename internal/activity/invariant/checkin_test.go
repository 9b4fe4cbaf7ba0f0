package invariant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fieldops/internal/activity/models"
	"fieldops/internal/docstore"
	"fieldops/internal/geo"
	"fieldops/internal/template"
	dErrors "fieldops/pkg/domain-errors"
)

type CheckinSuite struct {
	suite.Suite
	store  *docstore.Memory
	ctx    context.Context
	now    time.Time
	origin geo.Point
}

func TestCheckinSuite(t *testing.T) {
	suite.Run(t, new(CheckinSuite))
}

func (s *CheckinSuite) SetupTest() {
	s.store = docstore.NewMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	s.origin = geo.Point{Latitude: 12.9716, Longitude: 77.5946}
}

func (s *CheckinSuite) checkinTemplate() *template.Template {
	return &template.Template{Name: "check-in", Report: template.ReportCheckin}
}

func (s *CheckinSuite) seedState(at time.Time, provider string, p geo.Point) {
	s.Require().NoError(s.store.AtomicWrite(s.ctx, []docstore.Write{{
		Collection: docstore.CollectionCheckinState,
		ID:         CheckinStateDocID("o1", "+15550001"),
		Data:       CheckinState{Geopoint: p, Timestamp: at, Provider: provider},
		Merge:      docstore.MergeReplace,
	}}))
}

func (s *CheckinSuite) input(p *geo.Point) Input {
	return Input{
		Draft:    &models.Activity{ID: "draft", Template: "check-in", OfficeID: "o1"},
		Template: s.checkinTemplate(),
		Office:   utcOffice(),
		Actor:    "+15550001",
		Geopoint: p,
		Provider: "HTML5",
		Now:      s.now,
	}
}

// away returns a point roughly km kilometers north of the origin.
func (s *CheckinSuite) away(km float64) geo.Point {
	return geo.Point{Latitude: s.origin.Latitude + km/111.19, Longitude: s.origin.Longitude}
}

func (s *CheckinSuite) TestFirstCheckinAccepted() {
	checker := New(s.store)
	s.NoError(checker.Check(s.ctx, s.input(&s.origin)))
}

func (s *CheckinSuite) TestSpeedHeuristic() {
	s.Run("50 km in one hour is rejected", func() {
		s.seedState(s.now.Add(-time.Hour), "HTML5", s.origin)
		fraudFired := false
		checker := New(s.store, WithFraudHook(func() { fraudFired = true }))

		target := s.away(50)
		err := checker.Check(s.ctx, s.input(&target))
		s.Require().Error(err)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
		s.Contains(err.Error(), "implausible travel speed")
		s.True(fraudFired)
	})

	s.Run("50 km in two hours is accepted", func() {
		s.seedState(s.now.Add(-2*time.Hour), "HTML5", s.origin)
		checker := New(s.store)

		target := s.away(50)
		s.NoError(checker.Check(s.ctx, s.input(&target)))
	})
}

func (s *CheckinSuite) TestGraceWindow() {
	// Identical coordinates three minutes apart: inside the grace window,
	// always accepted.
	s.seedState(s.now.Add(-3*time.Minute), "HTML5", s.origin)
	checker := New(s.store)
	s.NoError(checker.Check(s.ctx, s.input(&s.origin)))
}

func (s *CheckinSuite) TestIdenticalCoordinatesRejected() {
	s.seedState(s.now.Add(-time.Hour), "HTML5", s.origin)
	checker := New(s.store)

	err := checker.Check(s.ctx, s.input(&s.origin))
	s.Require().Error(err)
	s.Contains(err.Error(), "identical coordinates")
}

func (s *CheckinSuite) TestUntrustedProviderSkipped() {
	s.seedState(s.now.Add(-time.Hour), "network", s.origin)
	checker := New(s.store)

	target := s.away(500)
	s.NoError(checker.Check(s.ctx, s.input(&target)))
}

func (s *CheckinSuite) TestMissingGeopointSkipped() {
	s.seedState(s.now.Add(-time.Hour), "HTML5", s.origin)
	checker := New(s.store)
	s.NoError(checker.Check(s.ctx, s.input(nil)))
}

func (s *CheckinSuite) TestOffenseAggregateRecorded() {
	s.seedState(s.now.Add(-time.Hour), "HTML5", s.origin)
	checker := New(s.store)

	err := checker.Check(s.ctx, s.input(&s.origin))
	s.Require().Error(err)

	doc, err := s.store.Get(s.ctx, docstore.CollectionCheckinErrors,
		"2026-06-15#identical coordinates")
	s.Require().NoError(err)

	var agg struct {
		Date     string         `json:"date"`
		Offenses map[string]int `json:"offenses"`
	}
	s.Require().NoError(doc.Decode(&agg))
	s.Equal("2026-06-15", agg.Date)
	s.Equal(1, agg.Offenses["+15550001"])

	// A second offense on the same day increments the same aggregate.
	err = checker.Check(s.ctx, s.input(&s.origin))
	s.Require().Error(err)

	doc, err = s.store.Get(s.ctx, docstore.CollectionCheckinErrors,
		"2026-06-15#identical coordinates")
	s.Require().NoError(err)
	s.Require().NoError(doc.Decode(&agg))
	s.Equal(2, agg.Offenses["+15550001"])
}
