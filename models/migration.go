package models

import (
	"log"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Payroll{}, &PayrollQueueRecord{},
		&BenefitConsumption{}, &PayrollBenefitConsumption{}, &BenefitAttachment{},
		&Bill{}, &PaymentInvoice{}, &DetailPaymentInvoice{},
		&PaymentPlan{}, &PaymentCycle{}, &PaymentPoint{}, &Location{},
		&Individual{}, &Beneficiary{},
		&Task{},
		&CsvReconciliationUpload{}, &ProcessedCallback{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
