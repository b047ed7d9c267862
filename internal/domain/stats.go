package domain

// SessionStats aggregates a user's persistent media sessions.
type SessionStats struct {
	TotalSessions     int64 `json:"totalSessions"`
	TotalLines        int64 `json:"totalLines"`
	TotalChars        int64 `json:"totalChars"`
	TotalTimerSeconds int64 `json:"totalTimerSeconds"`
}
