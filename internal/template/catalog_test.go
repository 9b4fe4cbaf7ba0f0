package template

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"fieldops/internal/docstore"
	dErrors "fieldops/pkg/domain-errors"
)

type CatalogSuite struct {
	suite.Suite
	store   *docstore.Memory
	catalog *Catalog
	ctx     context.Context
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

func (s *CatalogSuite) SetupTest() {
	s.store = docstore.NewMemory()
	s.catalog = NewCatalog(s.store)
	s.ctx = context.Background()
}

func (s *CatalogSuite) seed(t Template) {
	s.Require().NoError(s.store.AtomicWrite(s.ctx, []docstore.Write{{
		Collection: docstore.CollectionTemplates, ID: t.Name, Data: t, Merge: docstore.MergeReplace,
	}}))
}

func (s *CatalogSuite) TestLookup() {
	s.seed(Template{
		Name:           "leave",
		StatusOnCreate: "PENDING",
		CanEditRule:    RuleCreator,
		ScheduleSlots:  []string{"leave"},
		Attachment: map[string]FieldSpec{
			"Type": {Type: "leave-type"},
		},
		CheckLimit: &CheckLimit{Kind: LimitKindLeave, TypeField: "Type", DefaultLimit: 20},
	})

	s.Run("resolves a stored template", func() {
		tmpl, err := s.catalog.Lookup(s.ctx, "leave")
		s.Require().NoError(err)
		s.Equal("leave", tmpl.Name)
		s.Equal(RuleCreator, tmpl.CanEditRule)
		s.Require().NotNil(tmpl.CheckLimit)
		s.Equal(20.0, tmpl.CheckLimit.DefaultLimit)
	})

	s.Run("empty name is a validation error", func() {
		_, err := s.catalog.Lookup(s.ctx, "")
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("absent template names itself in the error", func() {
		_, err := s.catalog.Lookup(s.ctx, "ghost")
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
		s.Contains(err.Error(), "ghost")
	})
}

func (s *CatalogSuite) TestFieldTypes() {
	s.True(FieldType("leave-type").IsRef())
	s.False(FieldString.IsRef())
	s.Equal("leave-type", FieldType("leave-type").RefTemplate())
}
