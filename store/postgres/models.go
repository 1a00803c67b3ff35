package postgres

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/vacation"
)

// Table models. Timestamps come from the engine clock, so gorm's automatic
// created/updated tracking is switched off.

type requestModel struct {
	ID                  string          `gorm:"primaryKey"`
	EmployeeID          string          `gorm:"not null;index:idx_vacation_requests_employee,priority:1"`
	RequesterID         string          `gorm:"not null"`
	TypeCode            string          `gorm:"not null"`
	RequestType         string          `gorm:"not null"`
	StartDate           vacation.Date   `gorm:"type:date;not null;index:idx_vacation_requests_employee,priority:2"`
	EndDate             vacation.Date   `gorm:"type:date;not null"`
	ReturnDate          vacation.Date   `gorm:"type:date;not null"`
	NumberOfDays        decimal.Decimal `gorm:"type:numeric(8,2);not null"`
	Comment             string
	LineManagerID       *string            `gorm:"index"`
	HRRepresentativeID  *string            `gorm:"index"`
	Status              string             `gorm:"not null;index"`
	LineManagerDecision *vacation.Decision `gorm:"serializer:json;type:text"`
	HRDecision          *vacation.Decision `gorm:"serializer:json;type:text"`
	Rejection           *vacation.Decision `gorm:"serializer:json;type:text"`
	Cancellation        *vacation.Decision `gorm:"serializer:json;type:text"`
	Registration        *vacation.Decision `gorm:"serializer:json;type:text"`
	EditCount           int                `gorm:"not null"`
	LastEditedBy        string
	LastEditedAt        *time.Time
	ReservedDays        decimal.Decimal `gorm:"type:numeric(8,2);not null"`
	UsedDays            decimal.Decimal `gorm:"type:numeric(8,2);not null"`
	Version             int             `gorm:"not null"`
	CreatedAt           time.Time       `gorm:"autoCreateTime:false"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime:false"`
	DeletedAt           *time.Time      `gorm:"index"`
}

func (requestModel) TableName() string { return "vacation_requests" }

func requestToModel(r *vacation.Request) requestModel {
	return requestModel{
		ID:                  r.ID,
		EmployeeID:          r.EmployeeID,
		RequesterID:         r.RequesterID,
		TypeCode:            r.TypeCode,
		RequestType:         string(r.RequestType),
		StartDate:           r.StartDate,
		EndDate:             r.EndDate,
		ReturnDate:          r.ReturnDate,
		NumberOfDays:        r.NumberOfDays,
		Comment:             r.Comment,
		LineManagerID:       r.LineManagerID,
		HRRepresentativeID:  r.HRRepresentativeID,
		Status:              string(r.Status),
		LineManagerDecision: r.LineManagerDecision,
		HRDecision:          r.HRDecision,
		Rejection:           r.Rejection,
		Cancellation:        r.Cancellation,
		Registration:        r.Registration,
		EditCount:           r.EditCount,
		LastEditedBy:        r.LastEditedBy,
		LastEditedAt:        r.LastEditedAt,
		ReservedDays:        r.ReservedDays,
		UsedDays:            r.UsedDays,
		Version:             r.Version,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		DeletedAt:           r.DeletedAt,
	}
}

func (m requestModel) toDomain() *vacation.Request {
	return &vacation.Request{
		ID:                  m.ID,
		EmployeeID:          m.EmployeeID,
		RequesterID:         m.RequesterID,
		TypeCode:            m.TypeCode,
		RequestType:         vacation.RequestType(m.RequestType),
		StartDate:           m.StartDate,
		EndDate:             m.EndDate,
		ReturnDate:          m.ReturnDate,
		NumberOfDays:        m.NumberOfDays,
		Comment:             m.Comment,
		LineManagerID:       m.LineManagerID,
		HRRepresentativeID:  m.HRRepresentativeID,
		Status:              vacation.RequestStatus(m.Status),
		LineManagerDecision: m.LineManagerDecision,
		HRDecision:          m.HRDecision,
		Rejection:           m.Rejection,
		Cancellation:        m.Cancellation,
		Registration:        m.Registration,
		EditCount:           m.EditCount,
		LastEditedBy:        m.LastEditedBy,
		LastEditedAt:        m.LastEditedAt,
		ReservedDays:        m.ReservedDays,
		UsedDays:            m.UsedDays,
		Version:             m.Version,
		CreatedAt:           m.CreatedAt.UTC(),
		UpdatedAt:           m.UpdatedAt.UTC(),
		DeletedAt:           m.DeletedAt,
	}
}

type scheduleModel struct {
	ID           string          `gorm:"primaryKey"`
	EmployeeID   string          `gorm:"not null;index:idx_vacation_schedules_employee,priority:1"`
	CreatedBy    string          `gorm:"not null"`
	TypeCode     string          `gorm:"not null"`
	StartDate    vacation.Date   `gorm:"type:date;not null;index:idx_vacation_schedules_employee,priority:2"`
	EndDate      vacation.Date   `gorm:"type:date;not null"`
	ReturnDate   vacation.Date   `gorm:"type:date;not null"`
	NumberOfDays decimal.Decimal `gorm:"type:numeric(8,2);not null"`
	Comment      string
	Status       string `gorm:"not null"`
	EditCount    int    `gorm:"not null"`
	LastEditedBy string
	LastEditedAt *time.Time
	Registration *vacation.Decision `gorm:"serializer:json;type:text"`
	ReservedDays decimal.Decimal    `gorm:"type:numeric(8,2);not null"`
	UsedDays     decimal.Decimal    `gorm:"type:numeric(8,2);not null"`
	Version      int                `gorm:"not null"`
	CreatedAt    time.Time          `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time          `gorm:"autoUpdateTime:false"`
	DeletedAt    *time.Time         `gorm:"index"`
}

func (scheduleModel) TableName() string { return "vacation_schedules" }

func scheduleToModel(s *vacation.Schedule) scheduleModel {
	return scheduleModel{
		ID:           s.ID,
		EmployeeID:   s.EmployeeID,
		CreatedBy:    s.CreatedBy,
		TypeCode:     s.TypeCode,
		StartDate:    s.StartDate,
		EndDate:      s.EndDate,
		ReturnDate:   s.ReturnDate,
		NumberOfDays: s.NumberOfDays,
		Comment:      s.Comment,
		Status:       string(s.Status),
		EditCount:    s.EditCount,
		LastEditedBy: s.LastEditedBy,
		LastEditedAt: s.LastEditedAt,
		Registration: s.Registration,
		ReservedDays: s.ReservedDays,
		UsedDays:     s.UsedDays,
		Version:      s.Version,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		DeletedAt:    s.DeletedAt,
	}
}

func (m scheduleModel) toDomain() *vacation.Schedule {
	return &vacation.Schedule{
		ID:           m.ID,
		EmployeeID:   m.EmployeeID,
		CreatedBy:    m.CreatedBy,
		TypeCode:     m.TypeCode,
		StartDate:    m.StartDate,
		EndDate:      m.EndDate,
		ReturnDate:   m.ReturnDate,
		NumberOfDays: m.NumberOfDays,
		Comment:      m.Comment,
		Status:       vacation.ScheduleStatus(m.Status),
		EditCount:    m.EditCount,
		LastEditedBy: m.LastEditedBy,
		LastEditedAt: m.LastEditedAt,
		Registration: m.Registration,
		ReservedDays: m.ReservedDays,
		UsedDays:     m.UsedDays,
		Version:      m.Version,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
		DeletedAt:    m.DeletedAt,
	}
}

type balanceModel struct {
	EmployeeID    string          `gorm:"primaryKey"`
	Year          int             `gorm:"primaryKey;autoIncrement:false"`
	StartBalance  decimal.Decimal `gorm:"type:numeric(8,2);not null"`
	YearlyBalance decimal.Decimal `gorm:"type:numeric(8,2);not null"`
	UsedDays      decimal.Decimal `gorm:"type:numeric(8,2);not null"`
	ScheduledDays decimal.Decimal `gorm:"type:numeric(8,2);not null"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime:false"`
}

func (balanceModel) TableName() string { return "vacation_balances" }

func balanceToModel(b *vacation.Balance) balanceModel {
	return balanceModel{
		EmployeeID:    b.EmployeeID(),
		Year:          b.Year(),
		StartBalance:  b.StartBalance(),
		YearlyBalance: b.YearlyBalance(),
		UsedDays:      b.UsedDays(),
		ScheduledDays: b.ScheduledDays(),
		UpdatedAt:     b.UpdatedAt(),
	}
}

func (m balanceModel) toDomain() *vacation.Balance {
	return vacation.RestoreBalance(m.EmployeeID, m.Year,
		m.StartBalance, m.YearlyBalance, m.UsedDays, m.ScheduledDays, m.UpdatedAt.UTC())
}

type activityModel struct {
	ID          string `gorm:"primaryKey"`
	Seq         int64  `gorm:"autoIncrement"`
	Subject     string `gorm:"not null"`
	SubjectID   string `gorm:"not null;index:idx_vacation_activities_subject,priority:1"`
	Type        string `gorm:"not null"`
	Description string `gorm:"not null"`
	ActorID     string
	Metadata    vacation.Metadata `gorm:"type:jsonb"`
	CreatedAt   time.Time         `gorm:"autoCreateTime:false;index:idx_vacation_activities_subject,priority:2"`
}

func (activityModel) TableName() string { return "vacation_activities" }

func (m activityModel) toDomain() vacation.Activity {
	return vacation.Activity{
		ID:          m.ID,
		Subject:     vacation.SubjectKind(m.Subject),
		SubjectID:   m.SubjectID,
		Type:        vacation.ActivityType(m.Type),
		Description: m.Description,
		ActorID:     m.ActorID,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

type vacationTypeModel struct {
	Code               string `gorm:"primaryKey"`
	Name               string `gorm:"not null"`
	RequiresApproval   bool
	AffectsBalance     bool
	MaxConsecutiveDays *int
	Color              string
	Active             bool
	DeletedAt          *time.Time
}

func (vacationTypeModel) TableName() string { return "vacation_types" }

type employeeModel struct {
	ID            string `gorm:"primaryKey"`
	Name          string `gorm:"not null"`
	Email         string
	DepartmentID  string `gorm:"index"`
	LineManagerID string `gorm:"index"`
	IsHR          bool
	Active        bool
}

func (employeeModel) TableName() string { return "vacation_employees" }

type settingsModel struct {
	ID                   string   `gorm:"primaryKey"`
	NonWorkingDates      []string `gorm:"serializer:json;type:text"`
	DefaultHRApproverID  string
	AllowNegativeBalance bool
	MaxScheduleEdits     int
	NotificationLeadDays int
	DefaultYearlyDays    decimal.Decimal `gorm:"type:numeric(8,2)"`
	Active               bool            `gorm:"index"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime:false"`
}

func (settingsModel) TableName() string { return "vacation_settings" }

func (m settingsModel) toDomain() vacation.Settings {
	return vacation.Settings{
		ID:                   m.ID,
		NonWorkingDates:      m.NonWorkingDates,
		DefaultHRApproverID:  m.DefaultHRApproverID,
		AllowNegativeBalance: m.AllowNegativeBalance,
		MaxScheduleEdits:     m.MaxScheduleEdits,
		NotificationLeadDays: m.NotificationLeadDays,
		DefaultYearlyDays:    m.DefaultYearlyDays,
		Active:               m.Active,
		UpdatedAt:            m.UpdatedAt.UTC(),
	}
}
