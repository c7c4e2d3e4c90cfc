package throttle

import "time"

// AttemptRecord tracks consecutive failed verification attempts per subject.
type AttemptRecord struct {
	SubjectID     string     `gorm:"column:subject_id;primaryKey;type:varchar(64)"`
	AttemptCount  int        `gorm:"column:attempt_count;not null;default:0"`
	LastAttemptAt time.Time  `gorm:"column:last_attempt_at;autoUpdateTime"`
	LockedUntil   *time.Time `gorm:"column:locked_until"`
}

func (AttemptRecord) TableName() string {
	return "verify_attempts"
}

// State is the throttle view of a subject: how many consecutive failures it
// has accumulated and until when it is locked out (zero when unlocked).
type State struct {
	Failures    int
	LockedUntil time.Time
}

func (s State) Locked(now time.Time) bool {
	return now.Before(s.LockedUntil)
}
