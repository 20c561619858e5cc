package common

import (
	"github.com/google/uuid"
)

// NewDocumentID generates a unique document ID with the "doc_" prefix
func NewDocumentID() string {
	return "doc_" + uuid.New().String()
}

// NewJobID generates a unique generation job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewTemplateID generates a unique template ID with the "tpl_" prefix
func NewTemplateID() string {
	return "tpl_" + uuid.New().String()
}

// NewSectionID generates a unique document section ID with the "sec_" prefix
func NewSectionID() string {
	return "sec_" + uuid.New().String()
}

// NewProposalID generates a unique structure proposal ID with the "prop_" prefix
func NewProposalID() string {
	return "prop_" + uuid.New().String()
}
