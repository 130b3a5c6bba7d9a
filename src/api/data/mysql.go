package data

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/snowledge-labs/snowledge-api/src/api/types"
)

func MustMySQL(dsn string) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	return db
}

// Migrate keeps the schema in sync with the model structs. The unique
// index on proposal_votes(proposal_id, voter_id) created here is what the
// ballot upsert relies on.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.User{},
		&types.Community{},
		&types.CommunityMember{},
		&types.Proposal{},
		&types.ProposalVote{},
		&types.ProposalContributor{},
		&types.Notification{},
		&types.Setting{},
	)
}
