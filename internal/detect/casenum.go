package detect

import "github.com/jjenkins/visawatch/internal/model"

// ExtractCaseNumber derives the stable case identifier from a details link.
// A link without a casenum parameter yields "", which means the record
// cannot be tracked across snapshots.
func ExtractCaseNumber(detailsLink string) string {
	return model.CaseNumberFromLink(detailsLink)
}
