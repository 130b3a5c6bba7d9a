package types

import "time"

// Proposal status values. Transitions are one-way: PENDING may become
// APPROVED or REJECTED, after which the status never changes again.
const (
	ProposalPending  = "PENDING"
	ProposalApproved = "APPROVED"
	ProposalRejected = "REJECTED"
)

// Ballot choices.
const (
	VoteApproved = "APPROVED"
	VoteRejected = "REJECTED"
)

// Notification types surfaced to the web client.
const (
	NotifVoteApproved     = "VOTE_APPROVED"
	NotifVoteRejected     = "VOTE_REJECTED"
	NotifProposalApproved = "PROPOSAL_APPROVED"
	NotifProposalRejected = "PROPOSAL_REJECTED"
)

// Users
type User struct {
	ID           uint64 `gorm:"primaryKey"`
	Email        string `gorm:"size:256;unique;not null"`
	FullName     string `gorm:"size:128;not null"`
	PasswordHash string `gorm:"size:128;not null"`
	CreatedAt    time.Time
}

// Communities
type Community struct {
	ID               uint64 `gorm:"primaryKey"`
	Name             string `gorm:"size:128;not null"`
	Slug             string `gorm:"size:128;unique;not null"`
	CreatorID        uint64 `gorm:"index;not null"`
	DiscordChannelID string `gorm:"size:64"`
	CreatedAt        time.Time
}

// Community membership. Members are the eligible-voter pool for the
// community's proposals.
type CommunityMember struct {
	CommunityID uint64 `gorm:"primaryKey"`
	UserID      uint64 `gorm:"primaryKey"`
	Role        string `gorm:"size:32"` // creator, learner, contributor
	CreatedAt   time.Time
}

// Topic proposals submitted by community members
type Proposal struct {
	ID          uint64 `gorm:"primaryKey"`
	CommunityID uint64 `gorm:"index;not null"`
	AuthorID    uint64 `gorm:"index;not null"`
	Title       string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	Status      string `gorm:"size:16;not null;default:PENDING"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// One ballot per (proposal, voter). Re-votes overwrite the prior choice;
// the unique index is what makes the upsert contract enforceable.
type ProposalVote struct {
	ID         uint64 `gorm:"primaryKey"`
	ProposalID uint64 `gorm:"uniqueIndex:uniq_proposal_voter;not null"`
	VoterID    uint64 `gorm:"uniqueIndex:uniq_proposal_voter;not null"`
	Choice     string `gorm:"size:16;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Voters who opted in to contribute if the proposal passes
type ProposalContributor struct {
	ProposalID uint64 `gorm:"primaryKey"`
	UserID     uint64 `gorm:"primaryKey"`
	CreatedAt  time.Time
}

// In-app notification inbox
type Notification struct {
	ID        uint64 `gorm:"primaryKey"`
	UserID    uint64 `gorm:"index;not null"`
	Type      string `gorm:"size:32;not null"`
	Title     string `gorm:"size:255;not null"`
	Message   string `gorm:"type:text"`
	Link      string `gorm:"size:256"`
	ReadAt    *time.Time
	CreatedAt time.Time
}

// Settings
type Setting struct {
	ID    uint8  `gorm:"primaryKey"`
	Name  string `gorm:"size:32;not null"`
	Value string `gorm:"size:256;not null"`
}
