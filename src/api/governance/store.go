package governance

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/snowledge-labs/snowledge-api/src/api/types"
)

// Store is the MySQL-backed implementation of BallotStore, ProposalStore
// and EligibilityProvider.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// UpsertBallot writes the ballot through an INSERT ... ON DUPLICATE KEY
// UPDATE on the (proposal_id, voter_id) unique index, so concurrent
// writes for the same key serialize in the database with last-commit-wins
// semantics.
func (s *Store) UpsertBallot(ctx context.Context, proposalID, voterID uint64, choice string) (types.ProposalVote, error) {
	vote := types.ProposalVote{
		ProposalID: proposalID,
		VoterID:    voterID,
		Choice:     choice,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "proposal_id"}, {Name: "voter_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"choice", "updated_at"}),
	}).Create(&vote).Error
	if err != nil {
		return types.ProposalVote{}, err
	}
	return vote, nil
}

func (s *Store) CountByChoice(ctx context.Context, proposalID uint64) (Tally, error) {
	type agg struct {
		Choice string
		Count  int
	}
	var rows []agg
	err := s.db.WithContext(ctx).
		Model(&types.ProposalVote{}).
		Select("choice, count(*) as count").
		Where("proposal_id = ?", proposalID).
		Group("choice").
		Scan(&rows).Error
	if err != nil {
		return Tally{}, err
	}

	if len(rows) == 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&types.Proposal{}).Where("id = ?", proposalID).Count(&n).Error; err != nil {
			return Tally{}, err
		}
		if n == 0 {
			return Tally{}, ErrProposalNotFound
		}
	}

	var t Tally
	for _, r := range rows {
		switch r.Choice {
		case types.VoteApproved:
			t.Approved = r.Count
		case types.VoteRejected:
			t.Rejected = r.Count
		}
	}
	return t, nil
}

func (s *Store) Find(ctx context.Context, communityID, proposalID uint64) (types.Proposal, error) {
	var p types.Proposal
	err := s.db.WithContext(ctx).First(&p, "id = ? AND community_id = ?", proposalID, communityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Proposal{}, ErrProposalNotFound
	}
	if err != nil {
		return types.Proposal{}, err
	}
	return p, nil
}

func (s *Store) AddContributor(ctx context.Context, proposalID, userID uint64) error {
	var existing types.ProposalContributor
	err := s.db.WithContext(ctx).First(&existing, "proposal_id = ? AND user_id = ?", proposalID, userID).Error
	if err == nil {
		return ErrAlreadyContributor
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Create(&types.ProposalContributor{
		ProposalID: proposalID,
		UserID:     userID,
		CreatedAt:  time.Now(),
	}).Error
}

// Transition is the exactly-once guard: the conditional update only
// matches a row still in PENDING, so of any number of concurrent
// resolvers exactly one observes RowsAffected == 1.
func (s *Store) Transition(ctx context.Context, proposalID uint64, verdict string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&types.Proposal{}).
		Where("id = ? AND status = ?", proposalID, types.ProposalPending).
		Updates(map[string]interface{}{"status": verdict, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) EligibleVoterCount(ctx context.Context, communityID, proposalID uint64) (int, error) {
	authorID, err := s.proposalAuthor(ctx, proposalID)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.WithContext(ctx).
		Model(&types.CommunityMember{}).
		Where("community_id = ? AND user_id <> ?", communityID, authorID).
		Count(&n).Error
	return int(n), err
}

func (s *Store) IsEligibleVoter(ctx context.Context, communityID, proposalID, userID uint64) (bool, error) {
	authorID, err := s.proposalAuthor(ctx, proposalID)
	if err != nil {
		return false, err
	}
	if userID == authorID {
		return false, nil
	}
	var member types.CommunityMember
	err = s.db.WithContext(ctx).First(&member, "community_id = ? AND user_id = ?", communityID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) EligibleVoterIDs(ctx context.Context, communityID, proposalID uint64) ([]uint64, error) {
	authorID, err := s.proposalAuthor(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	err = s.db.WithContext(ctx).
		Model(&types.CommunityMember{}).
		Where("community_id = ? AND user_id <> ?", communityID, authorID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (s *Store) proposalAuthor(ctx context.Context, proposalID uint64) (uint64, error) {
	var p types.Proposal
	err := s.db.WithContext(ctx).Select("author_id").First(&p, "id = ?", proposalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrProposalNotFound
	}
	if err != nil {
		return 0, err
	}
	return p.AuthorID, nil
}
