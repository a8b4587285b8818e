package model

import "time"

// SubscriptionKind は購読対象の種別を表す。
type SubscriptionKind string

const (
	// SubscriptionKindPublisher は発行元への購読。
	SubscriptionKindPublisher SubscriptionKind = "publisher"
	// SubscriptionKindJournalist は記者への購読。
	SubscriptionKindJournalist SubscriptionKind = "journalist"
)

// Valid は既知の種別かを返す。
func (k SubscriptionKind) Valid() bool {
	return k == SubscriptionKindPublisher || k == SubscriptionKindJournalist
}

// SubscriptionEdge は読者から発行元または記者への購読関係を表す。
// ペイロードは持たない多対多の辺。
type SubscriptionEdge struct {
	ReaderID  string
	TargetID  string
	Kind      SubscriptionKind
	CreatedAt time.Time
}
