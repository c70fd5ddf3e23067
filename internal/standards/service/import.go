package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"conforma/internal/standards/models"
	"conforma/pkg/platform/audit"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// importColumns is the required CSV header, in order.
var importColumns = []string{"code", "title", "node_type", "parent_code", "description", "criticality"}

// RowError reports one rejected CSV row. Line numbers count from 1 and
// include the header.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportReport summarizes a bulk control import.
type ImportReport struct {
	Imported int        `json:"imported"`
	Rejected int        `json:"rejected"`
	Errors   []RowError `json:"errors,omitempty"`
}

// ImportControlsCSV bulk-loads control nodes into a draft version. Rows are
// validated independently: valid rows are inserted in one transaction,
// rejected rows are reported with their line numbers. Parents are resolved
// by code against both existing controls and earlier rows in the file, so a
// file can carry a whole subtree in document order.
func (s *Service) ImportControlsCSV(ctx context.Context, tenantID id.TenantID, versionID id.VersionID, r io.Reader) (*ImportReport, error) {
	if _, _, err := s.editableVersion(ctx, tenantID, versionID); err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "csv file is empty")
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	existing, err := s.controls.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list controls")
	}
	byCode := make(map[string]*models.ControlNode, len(existing))
	for _, n := range existing {
		byCode[n.Code] = n
	}

	now := requestcontext.Now(ctx)
	report := &ImportReport{}
	var pending []*models.ControlNode

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			report.Rejected++
			report.Errors = append(report.Errors, RowError{Line: line, Message: "malformed csv row"})
			continue
		}

		node, rowErr := s.parseImportRow(record, versionID, byCode, now)
		if rowErr != "" {
			report.Rejected++
			report.Errors = append(report.Errors, RowError{Line: line, Message: rowErr})
			continue
		}
		if _, dup := byCode[node.Code]; dup {
			report.Rejected++
			report.Errors = append(report.Errors, RowError{Line: line, Message: fmt.Sprintf("duplicate code %q", node.Code)})
			continue
		}
		byCode[node.Code] = node
		pending = append(pending, node)
	}

	if len(pending) > 0 {
		err = s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
			for _, node := range pending {
				if err := s.controls.CreateIfCodeAvailable(txCtx, node); err != nil {
					if errors.Is(err, sentinel.ErrAlreadyUsed) {
						return dErrors.Newf(dErrors.CodeConflict, "control code %q already in use", node.Code)
					}
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to insert control")
				}
			}
			return s.recordForTenant(txCtx, tenantID, audit.EventControlsImported, "standard_version",
				versionID.String(), fmt.Sprintf("%d controls imported", len(pending)))
		})
		if err != nil {
			return nil, err
		}
	}

	report.Imported = len(pending)
	if s.metrics != nil {
		s.metrics.AddControlsImported(report.Imported)
	}
	return report, nil
}

func checkHeader(header []string) error {
	if len(header) != len(importColumns) {
		return dErrors.Newf(dErrors.CodeValidation, "csv header must be %s", strings.Join(importColumns, ","))
	}
	for i, col := range importColumns {
		if !strings.EqualFold(strings.TrimSpace(header[i]), col) {
			return dErrors.Newf(dErrors.CodeValidation, "csv header must be %s", strings.Join(importColumns, ","))
		}
	}
	return nil
}

// parseImportRow builds a node from one CSV record. A non-empty return
// string is the row-level rejection reason.
func (s *Service) parseImportRow(record []string, versionID id.VersionID,
	byCode map[string]*models.ControlNode, now time.Time) (*models.ControlNode, string) {
	if len(record) != len(importColumns) {
		return nil, "wrong number of columns"
	}
	code := strings.TrimSpace(record[0])
	title := strings.TrimSpace(record[1])
	nodeType := models.NodeType(strings.ToLower(strings.TrimSpace(record[2])))
	parentCode := strings.TrimSpace(record[3])
	description := strings.TrimSpace(record[4])

	criticality := 0
	if raw := strings.TrimSpace(record[5]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Sprintf("invalid criticality %q", raw)
		}
		criticality = n
	}

	var parentID *id.ControlID
	var parent *models.ControlNode
	if parentCode != "" {
		p, ok := byCode[parentCode]
		if !ok {
			return nil, fmt.Sprintf("unknown parent code %q", parentCode)
		}
		parent = p
		parentID = &p.ID
	}

	node, err := models.NewControlNode(id.NewControlID(), versionID, parentID,
		nodeType, code, title, description, criticality, now)
	if err != nil {
		return nil, dErrors.MessageOf(err)
	}
	if parent != nil && !node.NodeType.AcceptsParent(parent.NodeType) {
		return nil, fmt.Sprintf("%s nodes cannot sit under %s nodes", node.NodeType, parent.NodeType)
	}
	return node, ""
}
