package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// LoginRequest is the payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by the login endpoint.
// User is only present on servers that embed the profile in the login reply.
type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   *time.Time   `json:"expiresAt,omitempty"`
	User        *CurrentUser `json:"user,omitempty"`
}

// User is a portal account.
type User struct {
	ID           ID     `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Role         Role   `json:"role"`
	DepartmentID ID     `json:"departmentId,omitempty"`
}

// CommissionPosition is a member's position within a department commission.
type CommissionPosition string

const (
	CommissionPositionMember   CommissionPosition = "MEMBER"
	CommissionPositionChairman CommissionPosition = "CHAIRMAN"
)

// CommissionMember links a teacher to a department's internship commission.
type CommissionMember struct {
	ID           ID                 `json:"id"`
	UserID       ID                 `json:"userId"`
	DepartmentID ID                 `json:"departmentId"`
	Position     CommissionPosition `json:"position"`
	User         *User              `json:"user,omitempty"`
}

// CommissionMemberInput is the payload for creating or updating a commission member.
type CommissionMemberInput struct {
	UserID       ID                 `json:"userId" yaml:"userId"`
	DepartmentID ID                 `json:"departmentId" yaml:"departmentId"`
	Position     CommissionPosition `json:"position" yaml:"position"`
}

// Department is a university department.
type Department struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// DepartmentInput is the payload for creating a department.
type DepartmentInput struct {
	Name string `json:"name" yaml:"name"`
	Code string `json:"code,omitempty" yaml:"code"`
}

// ApplicationStatus is the review state of an internship application.
type ApplicationStatus string

const (
	ApplicationStatusPending     ApplicationStatus = "PENDING"
	ApplicationStatusUnderReview ApplicationStatus = "UNDER_REVIEW"
	ApplicationStatusApproved    ApplicationStatus = "APPROVED"
	ApplicationStatusRejected    ApplicationStatus = "REJECTED"
)

// InternshipApplication is a student's internship application.
type InternshipApplication struct {
	ID          ID                `json:"id"`
	StudentID   ID                `json:"studentId"`
	TopicID     ID                `json:"topicId,omitempty"`
	CompanyName string            `json:"companyName"`
	Position    string            `json:"position,omitempty"`
	StartDate   string            `json:"startDate,omitempty"`
	EndDate     string            `json:"endDate,omitempty"`
	Status      ApplicationStatus `json:"status"`
	AssigneeID  ID                `json:"assigneeId,omitempty"`
	Comment     string            `json:"comment,omitempty"`
	CreatedAt   *time.Time        `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
}

// ApplicationInput is the payload for submitting or updating an application.
type ApplicationInput struct {
	TopicID     ID     `json:"topicId,omitempty" yaml:"topicId"`
	CompanyName string `json:"companyName" yaml:"companyName"`
	Position    string `json:"position,omitempty" yaml:"position"`
	StartDate   string `json:"startDate,omitempty" yaml:"startDate"`
	EndDate     string `json:"endDate,omitempty" yaml:"endDate"`
	Comment     string `json:"comment,omitempty" yaml:"comment"`
}

// StatusChange is the payload for moving an application to a new status.
type StatusChange struct {
	Status  ApplicationStatus `json:"status"`
	Comment string            `json:"comment,omitempty"`
}

// Assignment is the payload for assigning an application to a commission member.
type Assignment struct {
	AssigneeID ID `json:"assigneeId"`
}

// Topic is an internship topic proposed by a department.
type Topic struct {
	ID           ID     `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	DepartmentID ID     `json:"departmentId,omitempty"`
	Capacity     int    `json:"capacity,omitempty"`
}

// TopicInput is the payload for creating or updating a topic.
type TopicInput struct {
	Title        string `json:"title" yaml:"title"`
	Description  string `json:"description,omitempty" yaml:"description"`
	DepartmentID ID     `json:"departmentId,omitempty" yaml:"departmentId"`
	Capacity     int    `json:"capacity,omitempty" yaml:"capacity"`
}

// UnreadCount is the number of unread notifications.
type UnreadCount struct {
	Count int `json:"count"`
}

// UnmarshalJSON accepts either a bare number or an object with a count field.
func (u *UnreadCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		return json.Unmarshal(data, &u.Count)
	}

	type plain UnreadCount
	return json.Unmarshal(data, (*plain)(u))
}
