package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role is the explicit role attached to an identity at login.
type Role string

const (
	RoleMember Role = "member"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// IsStaff is true for staff and admins.
func (r Role) IsStaff() bool { return r == RoleStaff || r == RoleAdmin }

func (r Role) IsAdmin() bool { return r == RoleAdmin }

type MemberStatus string

const (
	MemberPending  MemberStatus = "Pending"
	MemberApproved MemberStatus = "Approved"
	MemberDisabled MemberStatus = "Disabled"
	MemberMerged   MemberStatus = "Merged"
)

// MembershipTier values: Lesson | Horsemanship | Camp | Event | Other
type MembershipTier string

const (
	TierLesson       MembershipTier = "Lesson"
	TierHorsemanship MembershipTier = "Horsemanship"
	TierCamp         MembershipTier = "Camp"
	TierEvent        MembershipTier = "Event"
	TierOther        MembershipTier = "Other"
)

var MembershipTiers = []MembershipTier{TierLesson, TierHorsemanship, TierCamp, TierEvent, TierOther}

func (t MembershipTier) Valid() bool {
	for _, v := range MembershipTiers {
		if v == t {
			return true
		}
	}
	return false
}

func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Email           string `gorm:"uniqueIndex;not null"` // lowercase
	PasswordHash    string `gorm:"not null"`
	Role            Role   `gorm:"not null;default:member"`
	IsActive        bool   `gorm:"not null;default:true"`
	EmailVerifiedAt *time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	newID(&u.ID)
	return nil
}

type Member struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID *uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	User   *User      `gorm:"constraint:OnDelete:CASCADE"`

	FirstName  string `gorm:"not null"`
	LastName   string `gorm:"not null"`
	ParentName string
	Phone      string

	MembershipTier     MembershipTier `gorm:"not null;default:Lesson"`
	Status             MemberStatus   `gorm:"not null;default:Pending;index"`
	CertificationLevel string         `gorm:"not null;default:None"`

	MergedIntoID *uuid.UUID `gorm:"type:uuid;index"`

	// Cached stats, rebuilt by services.RecomputeAttendance.
	Attendance30d     int `gorm:"column:attendance_30d;not null;default:0"`
	AttendanceAllTime int `gorm:"not null;default:0"`
	LastCheckinAt     *time.Time
	StatsRecomputedAt *time.Time

	SignedDocuments []SignedDocument `gorm:"constraint:OnDelete:CASCADE"`
	CheckIns        []CheckIn        `gorm:"constraint:OnDelete:CASCADE"`
	GoalRequests    []GoalRequest    `gorm:"constraint:OnDelete:CASCADE"`
	Goals           []Goal           `gorm:"constraint:OnDelete:CASCADE"`
	Notes           []Note           `gorm:"constraint:OnDelete:CASCADE"`
	AuditLogs       []AuditLog       `gorm:"constraint:OnDelete:SET NULL"`
}

func (m *Member) BeforeCreate(tx *gorm.DB) error {
	newID(&m.ID)
	return nil
}

func (m Member) FullName() string { return m.FirstName + " " + m.LastName }

// CanParticipate reports whether the member may sign documents or check in.
func (m Member) CanParticipate() bool {
	return m.Status != MemberDisabled && m.Status != MemberMerged
}

// MergeState is the tagged view of merged_into.
type MergeState struct {
	Merged bool
	Target uuid.UUID
}

func (m Member) MergeState() MergeState {
	if m.Status == MemberMerged && m.MergedIntoID != nil {
		return MergeState{Merged: true, Target: *m.MergedIntoID}
	}
	return MergeState{}
}

type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Code       string `gorm:"not null;uniqueIndex:idx_documents_code_version"`
	Version    int    `gorm:"not null;default:1;uniqueIndex:idx_documents_code_version"`
	Name       string `gorm:"not null"`
	Content    string `gorm:"not null"`
	IsActive   bool   `gorm:"not null;default:true"`
	IsRequired bool   `gorm:"not null;default:true"`

	Signatures []SignedDocument `gorm:"constraint:OnDelete:RESTRICT"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	newID(&d.ID)
	return nil
}

// SignedDocument is the legal record of a signature. DocumentSnapshot is the
// exact text agreed to and is never re-derived from the Document row.
type SignedDocument struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time

	DocumentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_signed_document_member"`
	MemberID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_signed_document_member;index"`
	UserID     uuid.UUID `gorm:"type:uuid;not null"`

	SignedName    string `gorm:"not null"`
	SignedForName string
	Relationship  string

	SignedAt  time.Time `gorm:"not null"`
	IPAddress string
	UserAgent string

	DocumentSnapshot string `gorm:"not null"`
}

func (s *SignedDocument) BeforeCreate(tx *gorm.DB) error {
	newID(&s.ID)
	return nil
}

// ErrImmutable is returned by hooks on append-only tables.
var ErrImmutable = errors.New("record is immutable")

func (s *SignedDocument) BeforeUpdate(tx *gorm.DB) error { return ErrImmutable }

type CheckInType string

const (
	CheckInLesson       CheckInType = "Lesson"
	CheckInHorsemanship CheckInType = "Horsemanship"
	CheckInCamp         CheckInType = "Camp"
	CheckInEvent        CheckInType = "Event"
	CheckInOther        CheckInType = "Other"
)

var CheckInTypes = []CheckInType{CheckInLesson, CheckInHorsemanship, CheckInCamp, CheckInEvent, CheckInOther}

func (t CheckInType) Valid() bool {
	for _, v := range CheckInTypes {
		if v == t {
			return true
		}
	}
	return false
}

// CheckInStatus: Pending -> Confirmed | Rejected (both terminal)
type CheckInStatus string

const (
	CheckInPending   CheckInStatus = "Pending"
	CheckInConfirmed CheckInStatus = "Confirmed"
	CheckInRejected  CheckInStatus = "Rejected"
)

type CheckIn struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	MemberID uuid.UUID `gorm:"type:uuid;not null;index"`

	RequestedAt time.Time     `gorm:"not null;index"`
	ConfirmedAt *time.Time    `gorm:"index"`
	Type        CheckInType   `gorm:"not null;default:Lesson"`
	Status      CheckInStatus `gorm:"not null;default:Pending;index"`

	StudentNote string
	StaffNote   string

	InstructorID *uuid.UUID `gorm:"type:uuid"`
	CreatedByID  uuid.UUID  `gorm:"type:uuid;not null"`
	ApprovedByID *uuid.UUID `gorm:"type:uuid"`
}

func (c *CheckIn) BeforeCreate(tx *gorm.DB) error {
	newID(&c.ID)
	return nil
}

type GoalRequestStatus string

const (
	GoalRequestOpen      GoalRequestStatus = "Open"
	GoalRequestProcessed GoalRequestStatus = "Processed"
)

type GoalRequest struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	MemberID      uuid.UUID         `gorm:"type:uuid;not null;index"`
	SubmittedByID uuid.UUID         `gorm:"type:uuid;not null"`
	Content       string            `gorm:"not null"`
	Timeframe     string
	Status        GoalRequestStatus `gorm:"not null;default:Open;index"`
}

func (g *GoalRequest) BeforeCreate(tx *gorm.DB) error {
	newID(&g.ID)
	return nil
}

type GoalStatus string

const (
	GoalNotStarted GoalStatus = "NotStarted"
	GoalInProgress GoalStatus = "InProgress"
	GoalComplete   GoalStatus = "Complete"
)

func (s GoalStatus) Valid() bool {
	return s == GoalNotStarted || s == GoalInProgress || s == GoalComplete
}

type Goal struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	MemberID    uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedByID uuid.UUID `gorm:"type:uuid;not null"`

	Title       string `gorm:"not null"`
	Description string
	TargetDate  *time.Time
	Status      GoalStatus `gorm:"not null;default:NotStarted"`

	Updates []GoalUpdate `gorm:"constraint:OnDelete:CASCADE"`
}

func (g *Goal) BeforeCreate(tx *gorm.DB) error {
	newID(&g.ID)
	return nil
}

type AuthorType string

const (
	AuthorStaff  AuthorType = "Staff"
	AuthorMember AuthorType = "Member"
)

// GoalUpdate is append-only.
type GoalUpdate struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time

	GoalID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	AuthorID   uuid.UUID  `gorm:"type:uuid;not null"`
	AuthorType AuthorType `gorm:"not null"`
	Note       string     `gorm:"not null"`
}

func (g *GoalUpdate) BeforeCreate(tx *gorm.DB) error {
	newID(&g.ID)
	return nil
}

func (g *GoalUpdate) BeforeUpdate(tx *gorm.DB) error { return ErrImmutable }

type NoteCategory string

const (
	NoteRiding       NoteCategory = "Riding"
	NoteHorsemanship NoteCategory = "Horsemanship"
	NoteSafety       NoteCategory = "Safety"
	NoteBehavior     NoteCategory = "Behavior"
	NoteAdmin        NoteCategory = "Admin"
)

var NoteCategories = []NoteCategory{NoteRiding, NoteHorsemanship, NoteSafety, NoteBehavior, NoteAdmin}

func (c NoteCategory) Valid() bool {
	for _, v := range NoteCategories {
		if v == c {
			return true
		}
	}
	return false
}

type NoteVisibility string

const (
	NoteStudentVisible NoteVisibility = "StudentVisible"
	NoteStaffOnly      NoteVisibility = "StaffOnly"
)

type Note struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	MemberID   uuid.UUID      `gorm:"type:uuid;not null;index"`
	AuthorID   uuid.UUID      `gorm:"type:uuid;not null"`
	Category   NoteCategory   `gorm:"not null"`
	Visibility NoteVisibility `gorm:"not null;index"`
	Content    string         `gorm:"not null"`
}

func (n *Note) BeforeCreate(tx *gorm.DB) error {
	newID(&n.ID)
	return nil
}

// AuditLog is append-only: updates and deletes are refused at the model level.
type AuditLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"index"`

	ActorID  *uuid.UUID        `gorm:"type:uuid;index"`
	MemberID *uuid.UUID        `gorm:"type:uuid;index"`
	Action   string            `gorm:"not null;index"`
	Details  datatypes.JSONMap `gorm:"type:json"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	newID(&a.ID)
	return nil
}

func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error { return ErrImmutable }

func (a *AuditLog) BeforeDelete(tx *gorm.DB) error { return ErrImmutable }
