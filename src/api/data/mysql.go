package data

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/meridian-apps/casecomms/src/api/types"
)

func MustMySQL(dsn string) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	return db
}

// Migrate creates the tables owned by the messaging core. The users, roles
// and teams tables belong to the admin module and are not migrated here.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Channel{},
		&types.ChannelMember{},
		&types.Message{},
		&types.Attachment{},
		&types.ChannelRequest{},
		&types.ChannelRequestMember{},
	)
}
