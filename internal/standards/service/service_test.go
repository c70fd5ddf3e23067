package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"conforma/internal/standards/models"
	"conforma/internal/standards/store/memory"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

type StandardsServiceSuite struct {
	suite.Suite
	svc      *Service
	ctx      context.Context
	tenantID id.TenantID
	otherID  id.TenantID
}

func (s *StandardsServiceSuite) SetupTest() {
	s.svc = New(memory.NewStandardStore(), memory.NewVersionStore(), memory.NewControlStore())
	s.ctx = context.Background()
	s.tenantID = id.NewTenantID()
	s.otherID = id.NewTenantID()
}

func TestStandardsServiceSuite(t *testing.T) {
	suite.Run(t, new(StandardsServiceSuite))
}

func (s *StandardsServiceSuite) mustCreateStandard(tenantID id.TenantID, code string) *models.Standard {
	standard, err := s.svc.CreateStandard(s.ctx, tenantID, CreateStandardInput{
		Code: code,
		Name: "Standard " + code,
	})
	s.Require().NoError(err)
	return standard
}

func (s *StandardsServiceSuite) mustCreateVersion(tenantID id.TenantID, standardID id.StandardID, label string) *models.StandardVersion {
	version, err := s.svc.CreateVersion(s.ctx, tenantID, standardID, label)
	s.Require().NoError(err)
	return version
}

func (s *StandardsServiceSuite) mustCreateControl(tenantID id.TenantID, versionID id.VersionID, in CreateControlInput) *models.ControlNode {
	node, err := s.svc.CreateControl(s.ctx, tenantID, versionID, in)
	s.Require().NoError(err)
	return node
}

func (s *StandardsServiceSuite) TestCreateStandard() {
	s.Run("uppercases the code and scopes to the tenant", func() {
		standard := s.mustCreateStandard(s.tenantID, "iso-27001")
		s.Equal("ISO-27001", standard.Code)
		s.Equal(models.ScopeTenant, standard.Scope)
		s.Require().NotNil(standard.TenantID)
		s.Equal(s.tenantID, *standard.TenantID)
	})

	s.Run("rejects blank code", func() {
		_, err := s.svc.CreateStandard(s.ctx, s.tenantID, CreateStandardInput{Name: "No Code"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects duplicate code within a tenant", func() {
		s.mustCreateStandard(s.tenantID, "SOC2")
		_, err := s.svc.CreateStandard(s.ctx, s.tenantID, CreateStandardInput{Code: "soc2", Name: "Again"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("same code in another tenant is fine", func() {
		s.mustCreateStandard(s.tenantID, "NIST-CSF")
		standard := s.mustCreateStandard(s.otherID, "NIST-CSF")
		s.Equal("NIST-CSF", standard.Code)
	})
}

func (s *StandardsServiceSuite) TestVisibility() {
	s.Run("global standards are readable by every tenant", func() {
		global, err := s.svc.CreateGlobalStandard(s.ctx, CreateStandardInput{Code: "ISO-9001", Name: "Quality"})
		s.Require().NoError(err)
		s.Equal(models.ScopeGlobal, global.Scope)
		s.Nil(global.TenantID)

		got, err := s.svc.GetStandard(s.ctx, s.tenantID, global.ID)
		s.Require().NoError(err)
		s.Equal(global.ID, got.ID)
	})

	s.Run("tenant standards are hidden from other tenants", func() {
		standard := s.mustCreateStandard(s.tenantID, "PCI-DSS")
		_, err := s.svc.GetStandard(s.ctx, s.otherID, standard.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("listing merges global and own standards only", func() {
		_, err := s.svc.CreateGlobalStandard(s.ctx, CreateStandardInput{Code: "GDPR", Name: "Privacy"})
		s.Require().NoError(err)
		mine := s.mustCreateStandard(s.tenantID, "INTERNAL-1")
		s.mustCreateStandard(s.otherID, "THEIRS-1")

		listed, err := s.svc.ListStandards(s.ctx, s.tenantID)
		s.Require().NoError(err)
		codes := make([]string, 0, len(listed))
		for _, standard := range listed {
			codes = append(codes, standard.Code)
		}
		s.Contains(codes, "GDPR")
		s.Contains(codes, mine.Code)
		s.NotContains(codes, "THEIRS-1")
	})

	s.Run("global standards reject tenant edits", func() {
		global, err := s.svc.CreateGlobalStandard(s.ctx, CreateStandardInput{Code: "HIPAA", Name: "Health"})
		s.Require().NoError(err)
		name := "Renamed"
		_, err = s.svc.UpdateStandard(s.ctx, s.tenantID, global.ID, UpdateStandardInput{Name: &name})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *StandardsServiceSuite) TestVersionLifecycle() {
	s.Run("new versions start as drafts", func() {
		standard := s.mustCreateStandard(s.tenantID, "V-DRAFT")
		version := s.mustCreateVersion(s.tenantID, standard.ID, "2024")
		s.Equal(models.VersionDraft, version.Status)
		s.False(version.IsLocked())
	})

	s.Run("duplicate labels conflict", func() {
		standard := s.mustCreateStandard(s.tenantID, "V-DUP")
		s.mustCreateVersion(s.tenantID, standard.ID, "2024")
		_, err := s.svc.CreateVersion(s.ctx, s.tenantID, standard.ID, "2024")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("locking publishes and is one-way", func() {
		standard := s.mustCreateStandard(s.tenantID, "V-LOCK")
		version := s.mustCreateVersion(s.tenantID, standard.ID, "2024")

		locked, err := s.svc.LockVersion(s.ctx, s.tenantID, version.ID)
		s.Require().NoError(err)
		s.Equal(models.VersionPublished, locked.Status)
		s.True(locked.IsLocked())

		_, err = s.svc.LockVersion(s.ctx, s.tenantID, version.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("locked versions reject control mutations", func() {
		standard := s.mustCreateStandard(s.tenantID, "V-FROZEN")
		version := s.mustCreateVersion(s.tenantID, standard.ID, "2024")
		node := s.mustCreateControl(s.tenantID, version.ID, CreateControlInput{
			NodeType: models.NodeDomain, Code: "D1", Title: "Governance",
		})

		_, err := s.svc.LockVersion(s.ctx, s.tenantID, version.ID)
		s.Require().NoError(err)

		_, err = s.svc.CreateControl(s.ctx, s.tenantID, version.ID, CreateControlInput{
			NodeType: models.NodeDomain, Code: "D2", Title: "Operations",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		title := "Renamed"
		_, err = s.svc.UpdateControl(s.ctx, s.tenantID, node.ID, UpdateControlInput{Title: &title})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		err = s.svc.DeleteControl(s.ctx, s.tenantID, node.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("standards with a locked version cannot be deleted", func() {
		standard := s.mustCreateStandard(s.tenantID, "V-KEEP")
		version := s.mustCreateVersion(s.tenantID, standard.ID, "2024")
		_, err := s.svc.LockVersion(s.ctx, s.tenantID, version.ID)
		s.Require().NoError(err)

		err = s.svc.DeleteStandard(s.ctx, s.tenantID, standard.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *StandardsServiceSuite) TestControlHierarchy() {
	standard := s.mustCreateStandard(s.tenantID, "H-TEST")
	version := s.mustCreateVersion(s.tenantID, standard.ID, "1.0")

	domain := s.mustCreateControl(s.tenantID, version.ID, CreateControlInput{
		NodeType: models.NodeDomain, Code: "D1", Title: "Access Control",
	})
	control := s.mustCreateControl(s.tenantID, version.ID, CreateControlInput{
		NodeType: models.NodeControl, ParentID: &domain.ID, Code: "D1.1", Title: "Least Privilege",
	})

	s.Run("defaults criticality to three", func() {
		s.Equal(3, control.Criticality)
	})

	s.Run("domains must be roots", func() {
		_, err := s.svc.CreateControl(s.ctx, s.tenantID, version.ID, CreateControlInput{
			NodeType: models.NodeDomain, ParentID: &domain.ID, Code: "D2", Title: "Nested Domain",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("sub-controls only sit under controls", func() {
		_, err := s.svc.CreateControl(s.ctx, s.tenantID, version.ID, CreateControlInput{
			NodeType: models.NodeSubControl, ParentID: &domain.ID, Code: "D1.1.1", Title: "Bad Parent",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		sub := s.mustCreateControl(s.tenantID, version.ID, CreateControlInput{
			NodeType: models.NodeSubControl, ParentID: &control.ID, Code: "D1.1.1", Title: "Key Rotation",
		})
		s.Equal(control.ID, *sub.ParentID)
	})

	s.Run("codes are unique per version", func() {
		_, err := s.svc.CreateControl(s.ctx, s.tenantID, version.ID, CreateControlInput{
			NodeType: models.NodeDomain, Code: "D1", Title: "Duplicate",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("reparenting rejects cycles", func() {
		sub := s.mustCreateControl(s.tenantID, version.ID, CreateControlInput{
			NodeType: models.NodeSubControl, ParentID: &control.ID, Code: "D1.1.2", Title: "Reviews",
		})
		// control -> sub would close the loop control -> sub -> control.
		_, err := s.svc.UpdateControl(s.ctx, s.tenantID, control.ID, UpdateControlInput{
			SetParent: true, ParentID: &sub.ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("nodes with children cannot be deleted", func() {
		err := s.svc.DeleteControl(s.ctx, s.tenantID, domain.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("tree nests children under parents", func() {
		tree, err := s.svc.ListControlTree(s.ctx, s.tenantID, version.ID)
		s.Require().NoError(err)
		s.Require().Len(tree, 1)
		s.Equal("D1", tree[0].Code)
		s.Require().NotEmpty(tree[0].Children)
		s.Equal("D1.1", tree[0].Children[0].Code)
	})
}

func (s *StandardsServiceSuite) TestImportControlsCSV() {
	newDraft := func(code string) id.VersionID {
		standard := s.mustCreateStandard(s.tenantID, code)
		return s.mustCreateVersion(s.tenantID, standard.ID, "1.0").ID
	}

	s.Run("imports a subtree in document order", func() {
		versionID := newDraft("CSV-OK")
		file := strings.Join([]string{
			"code,title,node_type,parent_code,description,criticality",
			"D1,Governance,domain,,Top level,",
			"D1.1,Policies,control,D1,Written policies,4",
			"D1.1.1,Review cadence,sub_control,D1.1,,2",
		}, "\n")

		report, err := s.svc.ImportControlsCSV(s.ctx, s.tenantID, versionID, strings.NewReader(file))
		s.Require().NoError(err)
		s.Equal(3, report.Imported)
		s.Equal(0, report.Rejected)

		tree, err := s.svc.ListControlTree(s.ctx, s.tenantID, versionID)
		s.Require().NoError(err)
		s.Require().Len(tree, 1)
		s.Require().Len(tree[0].Children, 1)
		s.Len(tree[0].Children[0].Children, 1)
	})

	s.Run("reports rejected rows with line numbers", func() {
		versionID := newDraft("CSV-MIXED")
		file := strings.Join([]string{
			"code,title,node_type,parent_code,description,criticality",
			"D1,Governance,domain,,,",
			"D1.1,Policies,control,MISSING,,",
			"D1.2,Risk,control,D1,,9",
			"D1.3,Assets,control,D1,,",
		}, "\n")

		report, err := s.svc.ImportControlsCSV(s.ctx, s.tenantID, versionID, strings.NewReader(file))
		s.Require().NoError(err)
		s.Equal(2, report.Imported)
		s.Equal(2, report.Rejected)
		s.Require().Len(report.Errors, 2)
		s.Equal(3, report.Errors[0].Line)
		s.Equal(4, report.Errors[1].Line)
	})

	s.Run("rejects duplicate codes within the file", func() {
		versionID := newDraft("CSV-DUP")
		file := strings.Join([]string{
			"code,title,node_type,parent_code,description,criticality",
			"D1,Governance,domain,,,",
			"D1,Governance again,domain,,,",
		}, "\n")

		report, err := s.svc.ImportControlsCSV(s.ctx, s.tenantID, versionID, strings.NewReader(file))
		s.Require().NoError(err)
		s.Equal(1, report.Imported)
		s.Equal(1, report.Rejected)
	})

	s.Run("rejects a wrong header outright", func() {
		versionID := newDraft("CSV-HDR")
		_, err := s.svc.ImportControlsCSV(s.ctx, s.tenantID, versionID, strings.NewReader("code,name\nD1,Governance"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("locked versions refuse imports", func() {
		versionID := newDraft("CSV-LOCKED")
		_, err := s.svc.LockVersion(s.ctx, s.tenantID, versionID)
		s.Require().NoError(err)

		file := "code,title,node_type,parent_code,description,criticality\nD1,Governance,domain,,,"
		_, err = s.svc.ImportControlsCSV(s.ctx, s.tenantID, versionID, strings.NewReader(file))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}
