package model

import "time"

// Task is the to-do item of the example application
type Task struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Title     string      `gorm:"size:255;not null" json:"title"`
	Done      bool        `gorm:"not null;default:false" json:"done"`
	Tags      StringArray `gorm:"type:text" json:"tags"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName specifies the table name for Task
func (Task) TableName() string {
	return "tasks"
}
