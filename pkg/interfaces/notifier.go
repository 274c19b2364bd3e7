package interfaces

// Notifier pushes a structured notification envelope to a user's live
// connection. Delivery is best effort and never reports failure.
type Notifier interface {
	SendNotification(userID, notificationType string, data map[string]interface{}) bool
}

// ActivityRecorder receives authenticated activity for session analytics
type ActivityRecorder interface {
	RecordLogin(userID string)
	RecordLogout(userID string) bool
	RecordFeatureUsage(userID, feature string, metadata map[string]interface{})
}
