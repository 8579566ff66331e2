package session

import "gorm.io/gorm"

// ForMember returns a GORM scope that filters by member_id.
func ForMember(memberID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("member_id = ?", memberID)
	}
}
