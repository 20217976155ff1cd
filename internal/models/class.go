package models

import "time"

// Class member roles.
const (
	ClassMemberTeacher = "teacher"
	ClassMemberStudent = "student"
)

// Class groups students under one or more teachers for a course.
type Class struct {
	ID        string        `gorm:"primaryKey;size:64" json:"_id"`
	ClassName string        `gorm:"column:classname;size:255;not null" json:"classname"`
	CourseID  Ref           `gorm:"column:course_id;type:varchar(64)" json:"courseId"`
	Quantity  int           `json:"quantity"`
	Status    string        `gorm:"size:32" json:"status"`
	Members   []ClassMember `gorm:"foreignKey:ClassID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Teachers  []Ref         `gorm:"-" json:"teachers"`
	Students  []Ref         `gorm:"-" json:"students"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// ClassMember links a profile to a class with a member role.
type ClassMember struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	ClassID   string `gorm:"size:64;not null;index" json:"classId"`
	ProfileID string `gorm:"size:64;not null;index" json:"profileId"`
	Role      string `gorm:"size:16;not null" json:"role"`
}

// SplitMembers fills Teachers and Students from the loaded member rows.
func (c *Class) SplitMembers() {
	c.Teachers = []Ref{}
	c.Students = []Ref{}
	for _, member := range c.Members {
		switch member.Role {
		case ClassMemberTeacher:
			c.Teachers = append(c.Teachers, NewRef(member.ProfileID))
		case ClassMemberStudent:
			c.Students = append(c.Students, NewRef(member.ProfileID))
		}
	}
}
