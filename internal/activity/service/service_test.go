package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fieldops/internal/activity/invariant"
	"fieldops/internal/activity/models"
	"fieldops/internal/docstore"
	"fieldops/internal/idempotency"
	"fieldops/internal/identity"
	"fieldops/internal/office"
	"fieldops/internal/template"
	dErrors "fieldops/pkg/domain-errors"
	"fieldops/pkg/requestcontext"
)

type EngineSuite struct {
	suite.Suite
	store   *docstore.Memory
	engine  *Engine
	addenda chan models.Addendum
	ctx     context.Context
	now     time.Time
	auth    identity.Auth
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.store = docstore.NewMemory()
	s.addenda = make(chan models.Addendum, 16)
	s.now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.auth = identity.Auth{PhoneNumber: "+15550001", UID: "u1", DisplayName: "Pat"}

	catalog := template.NewCatalog(s.store)
	offices := office.NewLoader(s.store)
	checker := invariant.New(s.store)

	engine, err := New(s.store, catalog, offices, checker,
		WithIdempotency(idempotency.NewMemory()),
		WithAddendumStream(s.addenda),
	)
	s.Require().NoError(err)
	s.engine = engine

	s.seedTemplate(template.Template{
		Name:           "site-visit",
		StatusOnCreate: "PENDING",
		CanEditRule:    template.RuleCreator,
		ScheduleSlots:  []string{"visit"},
		VenueSlots:     []string{"site"},
		Attachment: map[string]template.FieldSpec{
			"Notes":   {Type: template.FieldString},
			"Contact": {Type: template.FieldPhone},
		},
	})
	s.seedTemplate(template.Template{
		Name:           template.NameOffice,
		StatusOnCreate: "CONFIRMED",
		CanEditRule:    template.RuleAdmin,
		Attachment: map[string]template.FieldSpec{
			"Name":     {Type: template.FieldString, Required: true},
			"Timezone": {Type: template.FieldString},
			"Admin":    {Type: template.FieldPhone},
		},
	})
	s.seedOffice(office.Office{
		ID: "o1", Name: "Acme", Status: "CONFIRMED", Timezone: "UTC",
		Admins: []string{"+15550009"},
	})
}

func (s *EngineSuite) seedTemplate(t template.Template) {
	s.Require().NoError(s.store.AtomicWrite(s.ctx, []docstore.Write{{
		Collection: docstore.CollectionTemplates, ID: t.Name, Data: t, Merge: docstore.MergeReplace,
	}}))
}

func (s *EngineSuite) seedOffice(o office.Office) {
	s.Require().NoError(s.store.AtomicWrite(s.ctx, []docstore.Write{{
		Collection: docstore.CollectionOffices, ID: o.ID, Data: o, Merge: docstore.MergeReplace,
	}}))
}

func (s *EngineSuite) createRequest() *models.CreateRequest {
	return &models.CreateRequest{
		Template: "site-visit",
		Office:   "o1",
		Attachment: map[string]json.RawMessage{
			"Notes":   json.RawMessage(`"inspect the roof"`),
			"Contact": json.RawMessage(`"+15550002"`),
		},
	}
}

func (s *EngineSuite) getActivity(id string) models.Activity {
	doc, err := s.store.Get(s.ctx, docstore.CollectionActivities, id)
	s.Require().NoError(err)
	var act models.Activity
	s.Require().NoError(doc.Decode(&act))
	return act
}

func (s *EngineSuite) TestCreate() {
	id, err := s.engine.Create(s.ctx, s.createRequest(), s.auth)
	s.Require().NoError(err)
	s.Require().NotEmpty(id)

	act := s.getActivity(id)
	s.Equal(models.StatusPending, act.Status)
	s.Equal("+15550001", act.Creator.PhoneNumber)
	s.Equal("o1", act.OfficeID)
	s.Equal("Acme", act.Office)
	// Creator plus the phone-typed attachment value.
	s.Equal([]string{"+15550001", "+15550002"}, act.Assignees)
	s.Require().NotEmpty(act.LatestAddendumID)

	doc, err := s.store.Get(s.ctx, docstore.CollectionAddenda, act.LatestAddendumID)
	s.Require().NoError(err)
	var add models.Addendum
	s.Require().NoError(doc.Decode(&add))
	s.Equal(models.ActionCreate, add.Action)
	s.Equal(id, add.ActivityID)

	// The creator can edit under the CREATOR rule; the contact cannot.
	assignee := func(phone string) models.Assignee {
		d, err := s.store.Get(s.ctx, docstore.CollectionAssignees, models.AssigneeDocID(id, phone))
		s.Require().NoError(err)
		var a models.Assignee
		s.Require().NoError(d.Decode(&a))
		return a
	}
	s.True(assignee("+15550001").CanEdit)
	s.False(assignee("+15550002").CanEdit)

	select {
	case streamed := <-s.addenda:
		s.Equal(add.ID, streamed.ID)
	default:
		s.Fail("addendum was not streamed")
	}
}

func (s *EngineSuite) TestCreateRejections() {
	s.Run("missing identity", func() {
		_, err := s.engine.Create(s.ctx, s.createRequest(), identity.Auth{})
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})

	s.Run("unknown template", func() {
		req := s.createRequest()
		req.Template = "nope"
		_, err := s.engine.Create(s.ctx, req, s.auth)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("unknown office", func() {
		req := s.createRequest()
		req.Office = "nope"
		_, err := s.engine.Create(s.ctx, req, s.auth)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("cancelled office", func() {
		s.seedOffice(office.Office{ID: "o2", Name: "Gone", Status: "CANCELLED"})
		req := s.createRequest()
		req.Office = "o2"
		_, err := s.engine.Create(s.ctx, req, s.auth)
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})

	s.Run("undeclared attachment key under strict normalization", func() {
		req := s.createRequest()
		req.Attachment["Bogus"] = json.RawMessage(`"x"`)
		_, err := s.engine.Create(s.ctx, req, s.auth)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})
}

func (s *EngineSuite) TestCreateIdempotency() {
	req := s.createRequest()
	req.IdempotencyKey = "retry-123"

	first, err := s.engine.Create(s.ctx, req, s.auth)
	s.Require().NoError(err)

	second, err := s.engine.Create(s.ctx, req, s.auth)
	s.Require().NoError(err)
	s.Equal(first, second)

	docs, err := s.store.Query(s.ctx, docstore.CollectionActivities, nil, 0)
	s.Require().NoError(err)
	s.Len(docs, 1)
}

func (s *EngineSuite) TestCreateIdempotencyReleasedOnFailure() {
	req := s.createRequest()
	req.Template = "nope"
	req.IdempotencyKey = "retry-456"

	_, err := s.engine.Create(s.ctx, req, s.auth)
	s.Require().Error(err)

	// The failed attempt must not poison the key for the corrected retry.
	req.Template = "site-visit"
	_, err = s.engine.Create(s.ctx, req, s.auth)
	s.NoError(err)
}

func (s *EngineSuite) TestCreateHiddenTemplate() {
	s.seedTemplate(template.Template{
		Name:           "payroll",
		StatusOnCreate: "PENDING",
		CanEditRule:    template.RuleFromInclude,
		Hidden:         true,
	})

	req := &models.CreateRequest{Template: "payroll", Office: "o1"}

	s.Run("no subscription is rejected", func() {
		_, err := s.engine.Create(s.ctx, req, s.auth)
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})

	s.Run("a subscription admits and widens the assignee set", func() {
		idx := map[string]any{
			"activityId": "sub1", "officeId": "o1", "template": "payroll",
			"phone": "+15550001", "include": []string{"+15550008"},
		}
		s.Require().NoError(s.store.AtomicWrite(s.ctx, []docstore.Write{{
			Collection: docstore.CollectionSubscriptionIndex,
			ID:         "o1#payroll#+15550001",
			Data:       idx,
			Merge:      docstore.MergeReplace,
		}}))

		id, err := s.engine.Create(s.ctx, req, s.auth)
		s.Require().NoError(err)
		act := s.getActivity(id)
		s.Equal([]string{"+15550001", "+15550008"}, act.Assignees)
	})

	s.Run("support requests bypass the subscription gate", func() {
		support := s.auth
		support.PhoneNumber = "+15559999"
		support.IsSupportRequest = true
		_, err := s.engine.Create(s.ctx, req, support)
		s.NoError(err)
	})
}

func (s *EngineSuite) TestCreateOffice() {
	req := &models.CreateRequest{
		Template: template.NameOffice,
		Attachment: map[string]json.RawMessage{
			"Name":     json.RawMessage(`"Branch West"`),
			"Timezone": json.RawMessage(`"Asia/Kolkata"`),
			"Admin":    json.RawMessage(`"+15550001"`),
		},
	}

	id, err := s.engine.Create(s.ctx, req, s.auth)
	s.Require().NoError(err)

	act := s.getActivity(id)
	s.Equal(id, act.OfficeID) // an office activity is its own office
	s.Equal("Branch West", act.Office)

	doc, err := s.store.Get(s.ctx, docstore.CollectionOffices, id)
	s.Require().NoError(err)
	var proj office.Office
	s.Require().NoError(doc.Decode(&proj))
	s.Equal("Branch West", proj.Name)
	s.Equal([]string{"+15550001"}, proj.Admins)

	s.Run("a second office with the same name conflicts", func() {
		_, err := s.engine.Create(s.ctx, req, s.auth)
		s.Require().Error(err)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
		s.Contains(err.Error(), "already exists")
	})
}

func (s *EngineSuite) TestUpdate() {
	id, err := s.engine.Create(s.ctx, s.createRequest(), s.auth)
	s.Require().NoError(err)

	s.Run("creator patches a single attachment field", func() {
		err := s.engine.Update(s.ctx, &models.UpdateRequest{
			ActivityID: id,
			Attachment: map[string]json.RawMessage{
				"Notes": json.RawMessage(`"roof fixed"`),
			},
		}, s.auth)
		s.Require().NoError(err)

		act := s.getActivity(id)
		s.Equal("roof fixed", act.Attachment["Notes"].Text)
		s.Equal("+15550002", act.Attachment["Contact"].Text) // untouched
	})

	s.Run("non-assignee is rejected", func() {
		err := s.engine.Update(s.ctx, &models.UpdateRequest{ActivityID: id},
			identity.Auth{PhoneNumber: "+15557777"})
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})

	s.Run("assignee without edit rights is rejected", func() {
		err := s.engine.Update(s.ctx, &models.UpdateRequest{ActivityID: id},
			identity.Auth{PhoneNumber: "+15550002"})
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})

	s.Run("support request bypasses edit rights", func() {
		err := s.engine.Update(s.ctx, &models.UpdateRequest{ActivityID: id},
			identity.Auth{PhoneNumber: "+15557777", IsSupportRequest: true})
		s.NoError(err)
	})

	s.Run("unknown activity", func() {
		err := s.engine.Update(s.ctx, &models.UpdateRequest{ActivityID: "nope"}, s.auth)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("cancelled activity cannot be updated", func() {
		s.Require().NoError(s.engine.ChangeStatus(s.ctx, &models.ChangeStatusRequest{
			ActivityID: id, NewStatus: models.StatusCancelled,
		}, s.auth))

		err := s.engine.Update(s.ctx, &models.UpdateRequest{ActivityID: id}, s.auth)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})
}

func (s *EngineSuite) TestChangeStatus() {
	id, err := s.engine.Create(s.ctx, s.createRequest(), s.auth)
	s.Require().NoError(err)

	s.Run("invalid status", func() {
		err := s.engine.ChangeStatus(s.ctx, &models.ChangeStatusRequest{
			ActivityID: id, NewStatus: "SHIPPED",
		}, s.auth)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("pending to confirmed", func() {
		err := s.engine.ChangeStatus(s.ctx, &models.ChangeStatusRequest{
			ActivityID: id, NewStatus: models.StatusConfirmed,
		}, s.auth)
		s.Require().NoError(err)
		s.Equal(models.StatusConfirmed, s.getActivity(id).Status)
	})

	s.Run("same status conflicts", func() {
		err := s.engine.ChangeStatus(s.ctx, &models.ChangeStatusRequest{
			ActivityID: id, NewStatus: models.StatusConfirmed,
		}, s.auth)
		s.Require().Error(err)
		s.Contains(err.Error(), "already CONFIRMED")
	})

	s.Run("confirmed cannot revert to pending", func() {
		err := s.engine.ChangeStatus(s.ctx, &models.ChangeStatusRequest{
			ActivityID: id, NewStatus: models.StatusPending,
		}, s.auth)
		s.Require().Error(err)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
		s.Contains(err.Error(), "cannot move to PENDING")
		s.Equal(models.StatusConfirmed, s.getActivity(id).Status)
	})

	s.Run("cancelled is terminal", func() {
		s.Require().NoError(s.engine.ChangeStatus(s.ctx, &models.ChangeStatusRequest{
			ActivityID: id, NewStatus: models.StatusCancelled,
		}, s.auth))

		err := s.engine.ChangeStatus(s.ctx, &models.ChangeStatusRequest{
			ActivityID: id, NewStatus: models.StatusPending,
		}, s.auth)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})
}

func (s *EngineSuite) TestConfirmRerunsInvariants() {
	s.seedTemplate(template.Template{
		Name:           "duty",
		StatusOnCreate: "PENDING",
		CanEditRule:    template.RuleCreator,
		ScheduleSlots:  []string{"shift"},
		DateConflict:   true,
	})

	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)
	newReq := func() *models.CreateRequest {
		return &models.CreateRequest{
			Template: "duty",
			Office:   "o1",
			Schedule: []models.ScheduleInput{{Name: "shift", StartTime: &start, EndTime: &end}},
		}
	}

	first, err := s.engine.Create(s.ctx, newReq(), s.auth)
	s.Require().NoError(err)
	// A pending twin is allowed; only CONFIRMED records conflict.
	second, err := s.engine.Create(s.ctx, newReq(), s.auth)
	s.Require().NoError(err)

	s.Require().NoError(s.engine.ChangeStatus(s.ctx, &models.ChangeStatusRequest{
		ActivityID: first, NewStatus: models.StatusConfirmed,
	}, s.auth))

	err = s.engine.ChangeStatus(s.ctx, &models.ChangeStatusRequest{
		ActivityID: second, NewStatus: models.StatusConfirmed,
	}, s.auth)
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	s.Contains(err.Error(), "already exists on 2026-07-01")
}

func (s *EngineSuite) TestShare() {
	id, err := s.engine.Create(s.ctx, s.createRequest(), s.auth)
	s.Require().NoError(err)

	s.Run("widens the assignee set and fans out records", func() {
		err := s.engine.Share(s.ctx, &models.ShareRequest{
			ActivityID: id, Share: []string{"+15550005"},
		}, s.auth)
		s.Require().NoError(err)

		act := s.getActivity(id)
		s.True(act.HasAssignee("+15550005"))

		_, err = s.store.Get(s.ctx, docstore.CollectionAssignees, models.AssigneeDocID(id, "+15550005"))
		s.NoError(err)
	})

	s.Run("unshare removes the participant and their record", func() {
		err := s.engine.Share(s.ctx, &models.ShareRequest{
			ActivityID: id, Unshare: []string{"+15550005"},
		}, s.auth)
		s.Require().NoError(err)

		act := s.getActivity(id)
		s.False(act.HasAssignee("+15550005"))

		_, err = s.store.Get(s.ctx, docstore.CollectionAssignees, models.AssigneeDocID(id, "+15550005"))
		s.Error(err)
	})

	s.Run("the creator cannot be unshared", func() {
		err := s.engine.Share(s.ctx, &models.ShareRequest{
			ActivityID: id, Unshare: []string{"+15550001"},
		}, s.auth)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("empty request is rejected", func() {
		err := s.engine.Share(s.ctx, &models.ShareRequest{ActivityID: id}, s.auth)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})
}

func (s *EngineSuite) TestKeyedMutex() {
	var km keyedMutex

	s.Run("serializes holders of one key", func() {
		var wg sync.WaitGroup
		counter := 0
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := km.lock("+15550001|leave|2026")
				counter++
				unlock()
			}()
		}
		wg.Wait()
		s.Equal(32, counter)
	})

	s.Run("independent keys do not block each other", func() {
		unlockA := km.lock("+15550001|claim|2026-06")
		unlockB := km.lock("+15550002|claim|2026-06")
		unlockB()
		unlockA()
	})

	s.Run("released keys are evicted", func() {
		unlock := km.lock("+15550001|leave|2026")
		unlock()

		km.mu.Lock()
		defer km.mu.Unlock()
		s.Empty(km.locks)
	})
}
