package models

import "time"

type DocumentType string

const (
	DocIDFront     DocumentType = "id_front"
	DocIDBack      DocumentType = "id_back"
	DocPaystub     DocumentType = "paystub"
	DocUtilityBill DocumentType = "utility_bill"
)

// DocumentTypes lists every accepted type in upload-form order.
var DocumentTypes = []DocumentType{DocIDFront, DocIDBack, DocPaystub, DocUtilityBill}

// RequiredDocumentTypes must all be on file before an application can be submitted.
var RequiredDocumentTypes = []DocumentType{DocIDFront, DocIDBack, DocPaystub}

// IsValid reports whether t is a known document type.
func (t DocumentType) IsValid() bool {
	for _, known := range DocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsRequired reports whether t is needed for submission.
func (t DocumentType) IsRequired() bool {
	for _, req := range RequiredDocumentTypes {
		if t == req {
			return true
		}
	}
	return false
}

// Document is keyed logically by (LoanApplicationID, DocumentType).
type Document struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	LoanApplicationID uint         `gorm:"not null;uniqueIndex:idx_document_app_type" json:"loan_application_id"`
	DocumentType      DocumentType `gorm:"size:50;not null;uniqueIndex:idx_document_app_type" json:"document_type"`
	FileName          string       `gorm:"size:256;not null" json:"file_name"`
	OriginalName      string       `gorm:"size:256;not null" json:"original_name"`
	MimeType          string       `gorm:"size:100;not null" json:"mime_type"`
	FileSize          int64        `gorm:"not null" json:"file_size"`
	UploadedAt        time.Time    `gorm:"autoCreateTime" json:"uploaded_at"`
}
