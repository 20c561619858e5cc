package models

import (
	"time"

	"github.com/ternarybob/trado/internal/common"
)

// ProposalStatus tracks user review of an AI-proposed outline
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusApproved ProposalStatus = "approved"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// StructureProposal is an AI-proposed section outline for a document. The
// structure resolver consumes the most recently approved proposal in
// ai_proposal mode.
type StructureProposal struct {
	ID         string         `json:"id" badgerhold:"key"`
	DocumentID string         `json:"document_id" badgerhold:"index"`
	Sections   []SectionPlan  `json:"sections"`
	Status     ProposalStatus `json:"status" badgerhold:"index"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewStructureProposal creates a pending proposal
func NewStructureProposal(documentID string, sections []SectionPlan) *StructureProposal {
	now := time.Now()
	return &StructureProposal{
		ID:         common.NewProposalID(),
		DocumentID: documentID,
		Sections:   sections,
		Status:     ProposalStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Approve marks the proposal as the one generation should follow
func (p *StructureProposal) Approve() {
	p.Status = ProposalStatusApproved
	p.UpdatedAt = time.Now()
}

// Reject marks the proposal as declined
func (p *StructureProposal) Reject() {
	p.Status = ProposalStatusRejected
	p.UpdatedAt = time.Now()
}

// DefaultProposalSections is the fixed fallback proposal used when the AI
// response cannot be parsed into a section list.
func DefaultProposalSections() []SectionPlan {
	return []SectionPlan{
		{Order: 1, Title: "概要", Description: "業務の全体像と引き継ぎの背景", EstimatedSources: nil},
		{Order: 2, Title: "担当業務一覧", Description: "日常的に担当していた業務の一覧", EstimatedSources: []string{SourceCalendar, SourceSpreadsheet}},
		{Order: 3, Title: "進行中プロジェクト", Description: "現在進行中のプロジェクトと状況", EstimatedSources: []string{SourceCalendar, SourceMessaging}},
		{Order: 4, Title: "重要な連絡先・関係者", Description: "業務上の主要な関係者と連絡先", EstimatedSources: []string{SourceMessaging}},
		{Order: 5, Title: "注意事項・引き継ぎメモ", Description: "後任者が注意すべき点", EstimatedSources: nil},
	}
}
