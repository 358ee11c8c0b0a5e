package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/payment"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// errorStatus maps the error kinds onto HTTP statuses; anything unmatched
// is a 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, utils.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, utils.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

type createPayrollRequest struct {
	Name                string                   `json:"name" binding:"required"`
	PaymentPlanId       string                   `json:"payment_plan_id" binding:"required"`
	PaymentPointId      string                   `json:"payment_point_id"`
	PaymentCycleId      string                   `json:"payment_cycle_id" binding:"required"`
	PaymentMethod       string                   `json:"payment_method" binding:"required"`
	DateValidFrom       string                   `json:"date_valid_from"`
	DateValidTo         string                   `json:"date_valid_to"`
	FromFailedPayrollId string                   `json:"from_failed_payroll_id"`
	ProjectIds          []string                 `json:"project_ids"`
	LocationIds         []string                 `json:"location_ids"`
	AdvancedCriteria    []models.FilterCondition `json:"advanced_criteria"`
}

func createPayrollHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPayrollRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		if _, err := payment.ForMethod(req.PaymentMethod); err != nil {
			abortWithError(c, fmt.Errorf("%w: unknown payment method %q", utils.ErrValidation, req.PaymentMethod))
			return
		}

		payroll, err := models.CreatePayroll(c.Request.Context(), models.CreationParams{
			Name:                req.Name,
			PaymentPlanId:       req.PaymentPlanId,
			PaymentPointId:      req.PaymentPointId,
			PaymentCycleId:      req.PaymentCycleId,
			PaymentMethod:       req.PaymentMethod,
			DateValidFrom:       req.DateValidFrom,
			DateValidTo:         req.DateValidTo,
			FromFailedPayrollId: req.FromFailedPayrollId,
			ProjectIds:          req.ProjectIds,
			LocationIds:         req.LocationIds,
			AdvancedCriteria:    req.AdvancedCriteria,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, payroll)
	}
}

func retriggerPayrollHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := models.RetriggerPayroll(c.Request.Context(), c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "retriggered"})
	}
}

func deletePayrollHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := models.DeletePayroll(c.Request.Context(), c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "delete task created"})
	}
}

func closePayrollHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := models.ClosePayroll(c.Request.Context(), c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "reconciliation task created"})
	}
}

func rejectApprovedPayrollHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := models.RejectApprovedPayroll(c.Request.Context(), c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "reject task created"})
	}
}

// RejectedBills is a pointer so an absent field (rejected) and an empty
// string (nothing rejected) stay distinguishable.
type callbackRequest struct {
	PayrollId           string          `json:"payroll_id"`
	ResponseFromGateway json.RawMessage `json:"response_from_gateway"`
	RejectedBills       *string         `json:"rejected_bills"`
}

// gatewayCallbackHandler applies the gateway acknowledgement: 201 on
// success, 400 on missing fields, 500 on anything unexpected. The raw body
// feeds the replay guard, so an identical retransmission is a no-op 201.
func gatewayCallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortWithError(c, fmt.Errorf("%w: unreadable body", utils.ErrValidation))
			return
		}
		var req callbackRequest
		if err := json.Unmarshal(body, &req); err != nil {
			abortWithError(c, fmt.Errorf("%w: malformed callback body", utils.ErrValidation))
			return
		}
		if req.PayrollId == "" || len(req.ResponseFromGateway) == 0 || req.RejectedBills == nil {
			abortWithError(c, fmt.Errorf("%w: payroll_id, response_from_gateway and rejected_bills are required", utils.ErrValidation))
			return
		}

		ctx := c.Request.Context()
		payroll, err := models.GetPayrollById(ctx, config.GetDB(), req.PayrollId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		strategy, err := payment.ForMethod(payroll.PaymentMethod)
		if err != nil {
			abortWithError(c, err)
			return
		}
		acknowledger, ok := strategy.(payment.Acknowledger)
		if !ok {
			abortWithError(c, fmt.Errorf("%w: payment method %s does not accept callbacks",
				utils.ErrValidation, payroll.PaymentMethod))
			return
		}
		if err := acknowledger.Acknowledge(ctx, payroll, body, payment.GatewayAck{
			ResponseFromGateway: req.ResponseFromGateway,
			RejectedBills:       *req.RejectedBills,
		}); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"status": "acknowledged"})
	}
}

func downloadReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB()

		// upload_id serves back a previously uploaded file as stored
		if uploadId := c.Query("upload_id"); uploadId != "" {
			upload, err := models.GetCsvUploadById(c.Request.Context(), db, uploadId)
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.Header("Content-Disposition", `attachment; filename="`+upload.FileName+`"`)
			c.Data(http.StatusOK, "text/csv", upload.FileBody)
			return
		}

		payrollId := c.Query("payroll_id")
		if payrollId == "" {
			abortWithError(c, fmt.Errorf("%w: payroll_id is required", utils.ErrValidation))
			return
		}
		if _, err := models.GetPayrollById(c.Request.Context(), db, payrollId); err != nil {
			abortWithError(c, err)
			return
		}
		rows, err := models.BuildReconciliationRows(db, payrollId)
		if err != nil {
			abortWithError(c, err)
			return
		}

		if c.Query("format") == "xlsx" {
			c.Header("Content-Disposition", `attachment; filename="reconciliation-`+payrollId+`.xlsx"`)
			c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			if err := models.WriteReconciliationXLSX(c.Writer, rows); err != nil {
				_ = c.Error(err)
			}
			return
		}
		c.Header("Content-Disposition", `attachment; filename="reconciliation-`+payrollId+`.csv"`)
		c.Header("Content-Type", "text/csv")
		if err := models.WriteReconciliationCSV(c.Writer, rows); err != nil {
			_ = c.Error(err)
		}
	}
}

func uploadReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		payrollId := c.Query("payroll_id")
		if payrollId == "" {
			payrollId = c.PostForm("payroll_id")
		}
		if payrollId == "" {
			abortWithError(c, fmt.Errorf("%w: payroll_id is required", utils.ErrValidation))
			return
		}
		fileHeader, err := c.FormFile("file")
		if err != nil {
			abortWithError(c, fmt.Errorf("%w: file is required", utils.ErrValidation))
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			abortWithError(c, err)
			return
		}
		defer file.Close()
		body, err := io.ReadAll(file)
		if err != nil {
			abortWithError(c, err)
			return
		}

		report, err := models.ProcessReconciliationFile(c.Request.Context(), payrollId, fileHeader.Filename, body)
		if err != nil {
			abortWithError(c, err)
			return
		}
		status := http.StatusOK
		if report.Status == models.CsvUploadStatusFail {
			status = http.StatusBadRequest
		}
		c.JSON(status, report)
	}
}

// applicationPaymentPoint resolves the caller's payment point name from the
// token's application claim.
func applicationPaymentPoint(c *gin.Context) (string, error) {
	app, ok := utils.GetApplicationFromContext(c.Request.Context())
	if !ok || app == "" {
		return "", fmt.Errorf("%w: token has no application claim", utils.ErrUnauthorized)
	}
	return app, nil
}

func listPaymentRequestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		app, err := applicationPaymentPoint(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		status, err := models.ParseBenefitStatus(c.DefaultQuery("status", string(models.BenefitStatusAccepted)))
		if err != nil {
			abortWithError(c, fmt.Errorf("%w: %v", utils.ErrValidation, err))
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "100"))

		result, err := models.GetBenefitsByPaymentPoint(c.Request.Context(), config.GetDB(), app, status, page, pageSize)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func applyPaymentRequestUpdate(c *gin.Context, app string, upd models.BenefitStatusUpdate) error {
	ctx := c.Request.Context()
	db := config.GetDB()
	if err := models.ValidateBenefitOwnership(ctx, db, app, upd.BenefitId); err != nil {
		return err
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return models.UpdateBenefitStatus(ctx, tx, upd)
	})
}

func updatePaymentRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		app, err := applicationPaymentPoint(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		var upd models.BenefitStatusUpdate
		if err := c.ShouldBindJSON(&upd); err != nil {
			abortWithError(c, fmt.Errorf("%w: %v", utils.ErrValidation, err))
			return
		}
		if err := applyPaymentRequestUpdate(c, app, upd); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"benefit_id": upd.BenefitId, "status": upd.NewStatus})
	}
}

type bulkUpdateResult struct {
	BenefitId string `json:"benefit_id"`
	Ok        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// bulkUpdatePaymentRequestsHandler applies each update independently and
// reports per-item outcomes: 200 when all succeed, 207 on a mix, 400 when
// everything failed.
func bulkUpdatePaymentRequestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		app, err := applicationPaymentPoint(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		var updates []models.BenefitStatusUpdate
		if err := c.ShouldBindJSON(&updates); err != nil {
			abortWithError(c, fmt.Errorf("%w: %v", utils.ErrValidation, err))
			return
		}
		if len(updates) == 0 {
			abortWithError(c, fmt.Errorf("%w: empty update list", utils.ErrValidation))
			return
		}

		results := make([]bulkUpdateResult, 0, len(updates))
		failed := 0
		for _, upd := range updates {
			res := bulkUpdateResult{BenefitId: upd.BenefitId, Ok: true}
			if err := applyPaymentRequestUpdate(c, app, upd); err != nil {
				res.Ok = false
				res.Error = err.Error()
				failed++
			}
			results = append(results, res)
		}

		status := http.StatusOK
		switch {
		case failed == len(updates):
			status = http.StatusBadRequest
		case failed > 0:
			status = http.StatusMultiStatus
		}
		c.JSON(status, gin.H{"results": results})
	}
}

func approveTaskHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		db := config.GetDB()
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return models.ApproveTask(ctx, tx, c.Param("id"))
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "approved"})
	}
}

func failTaskHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		db := config.GetDB()
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return models.FailTask(ctx, tx, c.Param("id"))
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "failed"})
	}
}
