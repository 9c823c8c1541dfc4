package domain

// FunnelStage is one named step of the application process with the count
// of conversations or applications that reached it.
type FunnelStage struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// FunnelSnapshot is the raw stage counts reported by the backend, ordered
// by process sequence: the first stage is the widest point of the funnel.
type FunnelSnapshot []FunnelStage

// Canonical funnel stage names, in process order. The backend reports
// counts keyed by these names; the snapshot preserves this order.
const (
	StageTotalConversations    = "total_conversations"
	StageQualifiedLeads        = "qualified_leads"
	StageDocumentsSubmitted    = "documents_submitted"
	StageApplicationsSubmitted = "applications_submitted"
	StageApproved              = "approved"
	StageSanctioned            = "sanctioned"
)

// CanonicalStageOrder lists the funnel stages in process sequence.
var CanonicalStageOrder = []string{
	StageTotalConversations,
	StageQualifiedLeads,
	StageDocumentsSubmitted,
	StageApplicationsSubmitted,
	StageApproved,
	StageSanctioned,
}
