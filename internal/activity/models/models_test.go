package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ActivitySuite struct {
	suite.Suite
}

func TestActivitySuite(t *testing.T) {
	suite.Run(t, new(ActivitySuite))
}

func (s *ActivitySuite) TestMergeAssignees() {
	s.Run("deduplicates and sorts", func() {
		act := &Activity{Assignees: []string{"+15550002"}}
		act.MergeAssignees("+15550001", "+15550002", "+15550003")
		s.Equal([]string{"+15550001", "+15550002", "+15550003"}, act.Assignees)
	})

	s.Run("drops empty phone numbers", func() {
		act := &Activity{}
		act.MergeAssignees("", "+15550001", "")
		s.Equal([]string{"+15550001"}, act.Assignees)
	})
}

func (s *ActivitySuite) TestRemoveAssignees() {
	act := &Activity{Assignees: []string{"+15550001", "+15550002", "+15550003"}}
	act.RemoveAssignees("+15550002", "+15550009")
	s.Equal([]string{"+15550001", "+15550003"}, act.Assignees)
	s.True(act.HasAssignee("+15550001"))
	s.False(act.HasAssignee("+15550002"))
}

func (s *ActivitySuite) TestRecompute() {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	s.Require().NoError(err)

	s.Run("dates expand the range in the office timezone", func() {
		// 2026-03-01 22:00 UTC is already 2026-03-02 in Kolkata.
		start := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
		end := time.Date(2026, 3, 3, 22, 0, 0, 0, time.UTC)
		act := &Activity{Schedule: []ScheduleEntry{
			{Name: "leave", StartTime: &start, EndTime: &end},
		}}

		act.Recompute(kolkata)
		s.Equal([]string{"2026-03-02", "2026-03-03", "2026-03-04"}, act.Dates)
	})

	s.Run("relevant time is the earliest start", func() {
		early := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		late := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
		act := &Activity{
			Timestamp: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			Schedule: []ScheduleEntry{
				{Name: "second", StartTime: &late},
				{Name: "first", StartTime: &early},
			},
		}

		act.Recompute(time.UTC)
		s.True(act.RelevantTime.Equal(early))
	})

	s.Run("empty schedule falls back to the submission timestamp", func() {
		ts := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
		act := &Activity{Timestamp: ts, Schedule: []ScheduleEntry{{Name: "slot"}}}

		act.Recompute(time.UTC)
		s.Empty(act.Dates)
		s.True(act.RelevantTime.Equal(ts))
	})
}
