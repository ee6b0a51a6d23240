package shared

// Task types cho asynq
const (
	TypeCatalogReconcile   = "catalog:reconcile"
	TypeCatalogRecalculate = "catalog:recalculate"
)

// Queue names
const (
	QueueCatalog = "catalog"
	QueueDefault = "default"
)

// ReconcilePayload: lượt reconcile đầy đủ. Reason chỉ dùng để log.
type ReconcilePayload struct {
	Reason string `json:"reason"`
}

// RecalculatePayload: recalculation theo tên category, rỗng = toàn bộ
type RecalculatePayload struct {
	Names []string `json:"names"`
}
