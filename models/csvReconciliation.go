package models

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Reconciliation file columns. The paid column is the only one the payment
// agent fills in: "yes" settles the row, "no" or blank leaves it untouched.
var reconciliationHeader = []string{
	"benefit_code", "first_name", "last_name", "amount", "status", "receipt", "paid",
}

const (
	paidYes = "yes"
	paidNo  = "no"
)

// ReconciliationRow is one line of the export or upload file.
type ReconciliationRow struct {
	BenefitCode string
	FirstName   string
	LastName    string
	Amount      string
	Status      string
	Receipt     string
	Paid        string
}

// BuildReconciliationRows renders the payroll's benefits into export rows.
// Paid is "yes" only for rows that are already RECONCILED and blank
// otherwise, so a payer can fill the column in as disbursements settle.
func BuildReconciliationRows(tx *gorm.DB, payrollId string) ([]ReconciliationRow, error) {
	benefits, err := BenefitsAttachedToPayroll(tx, payrollId)
	if err != nil {
		return nil, err
	}
	if len(benefits) == 0 {
		return nil, fmt.Errorf("%w: payroll %s has no benefits to reconcile", utils.ErrValidation, payrollId)
	}
	rows := make([]ReconciliationRow, 0, len(benefits))
	for _, benefit := range benefits {
		var individual Individual
		if err := tx.Where("id = ?", benefit.IndividualId).First(&individual).Error; err != nil && err != gorm.ErrRecordNotFound {
			return nil, err
		}
		row := ReconciliationRow{
			BenefitCode: benefit.Code,
			FirstName:   individual.FirstName,
			LastName:    individual.LastName,
			Amount:      benefit.Amount.StringFixed(2),
			Status:      string(benefit.Status),
			Receipt:     utils.DereferencePtr(benefit.Receipt),
		}
		if benefit.Status == BenefitStatusReconciled {
			row.Paid = paidYes
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteReconciliationCSV streams the rows as CSV.
func WriteReconciliationCSV(w io.Writer, rows []ReconciliationRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reconciliationHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{row.BenefitCode, row.FirstName, row.LastName, row.Amount, row.Status, row.Receipt, row.Paid}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReconciliationXLSX renders the rows as a single-sheet workbook.
func WriteReconciliationXLSX(w io.Writer, rows []ReconciliationRow) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	for col, name := range reconciliationHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}
	for i, row := range rows {
		values := []string{row.BenefitCode, row.FirstName, row.LastName, row.Amount, row.Status, row.Receipt, row.Paid}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}

// RowError is one rejected upload line with its file position.
type RowError struct {
	Line  int    `json:"line"`
	Code  string `json:"benefit_code"`
	Error string `json:"error"`
}

// UploadReport summarizes one processed reconciliation file.
type UploadReport struct {
	UploadId   string          `json:"upload_id"`
	Status     CsvUploadStatus `json:"status"`
	Reconciled int             `json:"reconciled"`
	Skipped    int             `json:"skipped"`
	Errors     []RowError      `json:"errors,omitempty"`
}

// ParseReconciliationCSV reads an upload body into rows, mapping columns by
// header name so column order does not matter.
func ParseReconciliationCSV(body []byte) ([]ReconciliationRow, error) {
	cr := csv.NewReader(bytes.NewReader(body))
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: empty or unreadable file", utils.ErrValidation)
	}
	idx := map[string]int{}
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"benefit_code", "paid"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", utils.ErrValidation, required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []ReconciliationRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed csv: %v", utils.ErrValidation, err)
		}
		rows = append(rows, ReconciliationRow{
			BenefitCode: field(record, "benefit_code"),
			Receipt:     field(record, "receipt"),
			Paid:        strings.ToLower(field(record, "paid")),
		})
	}
	return rows, nil
}

// ValidateReconciliationRow runs the per-row validation chain against the
// benefits of the target payroll: code resolves, benefit linked, paid value
// legal, receipt present and unused. receiptsSeen carries receipts consumed
// by earlier rows of the same file.
func ValidateReconciliationRow(ctx context.Context, tx *gorm.DB, row ReconciliationRow,
	benefitsByCode map[string]*BenefitConsumption, receiptsSeen map[string]bool) (*BenefitConsumption, error) {
	if row.BenefitCode == "" {
		return nil, fmt.Errorf("%w: benefit_code is empty", utils.ErrValidation)
	}
	benefit, ok := benefitsByCode[row.BenefitCode]
	if !ok {
		// resolve globally first so "unknown code" and "wrong payroll" read differently
		if _, err := GetBenefitByCode(ctx, tx, row.BenefitCode); err != nil {
			return nil, fmt.Errorf("%w: benefit %s not found", utils.ErrValidation, row.BenefitCode)
		}
		return nil, fmt.Errorf("%w: benefit %s is not part of the payroll", utils.ErrValidation, row.BenefitCode)
	}
	if row.Paid != "" && row.Paid != paidYes && row.Paid != paidNo {
		return nil, fmt.Errorf("%w: paid must be yes, no or empty, got %q", utils.ErrValidation, row.Paid)
	}
	if row.Receipt == "" {
		return nil, fmt.Errorf("%w: receipt is required", utils.ErrValidation)
	}
	if receiptsSeen[row.Receipt] {
		return nil, fmt.Errorf("%w: receipt %s appears twice in the file", utils.ErrValidation, row.Receipt)
	}
	inUse, err := ReceiptInUse(tx, row.Receipt, benefit.ID)
	if err != nil {
		return nil, err
	}
	if inUse {
		return nil, fmt.Errorf("%w: receipt %s already used", utils.ErrValidation, row.Receipt)
	}
	return benefit, nil
}

// ProcessReconciliationFile stores the upload record, validates every row,
// and applies the paid rows in one all-or-nothing transaction: any invalid
// row aborts the whole file with no state change. The upload record is
// written outside that transaction so a FAIL outcome survives the rollback.
func ProcessReconciliationFile(ctx context.Context, payrollId, fileName string, body []byte) (*UploadReport, error) {
	db := config.GetDB()

	payroll, err := GetPayrollById(ctx, db, payrollId)
	if err != nil {
		return nil, err
	}
	if payroll.Status != PayrollStatusAwaitingReconciliation && payroll.Status != PayrollStatusOngoing {
		return nil, fmt.Errorf("%w: payroll %s is %s, reconciliation upload needs an active payroll",
			utils.ErrInvalidState, payroll.ID, payroll.Status)
	}

	upload, err := CreateCsvUpload(ctx, db, payrollId, fileName, body)
	if err != nil {
		return nil, err
	}
	rep := UploadReport{UploadId: upload.ID}

	rows, err := ParseReconciliationCSV(body)
	if err != nil {
		rep.Status = CsvUploadStatusFail
		rep.Errors = []RowError{{Line: 1, Error: err.Error()}}
		return &rep, FinishCsvUpload(db, upload.ID, CsvUploadStatusFail, err)
	}

	txErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		benefits, err := BenefitsAttachedToPayroll(tx, payrollId)
		if err != nil {
			return err
		}
		benefitsByCode := make(map[string]*BenefitConsumption, len(benefits))
		for i := range benefits {
			benefitsByCode[benefits[i].Code] = &benefits[i]
		}

		receiptsSeen := map[string]bool{}
		type settlement struct {
			benefit *BenefitConsumption
			receipt string
		}
		var settlements []settlement
		for i, row := range rows {
			line := i + 2 // header is line 1
			benefit, err := ValidateReconciliationRow(ctx, tx, row, benefitsByCode, receiptsSeen)
			if err != nil {
				rep.Errors = append(rep.Errors, RowError{Line: line, Code: row.BenefitCode, Error: err.Error()})
				continue
			}
			receiptsSeen[row.Receipt] = true
			if row.Paid != paidYes || benefit.Status != BenefitStatusAccepted {
				rep.Skipped++
				continue
			}
			settlements = append(settlements, settlement{benefit: benefit, receipt: row.Receipt})
		}
		if len(rep.Errors) > 0 {
			return fmt.Errorf("%w: %d invalid rows", utils.ErrValidation, len(rep.Errors))
		}

		now := time.Now()
		for _, s := range settlements {
			if err := settleBenefitFromFile(tx, s.benefit, s.receipt, now); err != nil {
				return err
			}
			rep.Reconciled++
		}
		return nil
	})
	if txErr != nil {
		rep.Status = CsvUploadStatusFail
		rep.Reconciled = 0
		rep.Skipped = 0
		if len(rep.Errors) == 0 {
			rep.Errors = []RowError{{Line: 0, Error: txErr.Error()}}
		}
		return &rep, FinishCsvUpload(db, upload.ID, CsvUploadStatusFail, txErr)
	}

	rep.Status = CsvUploadStatusSuccess
	return &rep, FinishCsvUpload(db, upload.ID, CsvUploadStatusSuccess, nil)
}

// settleBenefitFromFile applies the paid=yes effects: the benefit turns
// RECONCILED with its receipt, the funding bill turns RECONCILIATED, and a
// payment invoice records the settlement.
func settleBenefitFromFile(tx *gorm.DB, benefit *BenefitConsumption, receipt string, now time.Time) error {
	res := tx.Model(&BenefitConsumption{}).
		Where("id = ? AND status = ? AND is_deleted = 0", benefit.ID, benefit.Status).
		Updates(map[string]interface{}{
			"status":  BenefitStatusReconciled,
			"receipt": receipt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: benefit %s changed concurrently", utils.ErrInvalidState, benefit.ID)
	}
	benefit.Status = BenefitStatusReconciled

	bill, err := BillForBenefit(tx, benefit.ID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := SetBillStatus(tx, bill.ID, BillStatusReconciliated); err != nil {
		return err
	}
	return CreatePaymentInvoiceForBill(tx, bill, receipt, &now)
}
